package aggregate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_IncrementalStats(t *testing.T) {
	state := NewState(uuid.New(), 0)

	values := []float64{10, 20, 30, 40}
	for _, v := range values {
		ok := state.Fold(uuid.New(), v, true)
		require.True(t, ok)
	}

	result := state.Snapshot()
	assert.Equal(t, int64(4), result.Count)
	assert.Equal(t, float64(100), result.Sum)
	assert.Equal(t, float64(10), result.Min)
	assert.Equal(t, float64(40), result.Max)
	assert.Equal(t, float64(25), result.Avg)
}

func TestState_DuplicateEventIDIsNoOp(t *testing.T) {
	state := NewState(uuid.New(), 0)
	id := uuid.New()

	require.True(t, state.Fold(id, 5, true))
	assert.False(t, state.Fold(id, 5, true))
	assert.False(t, state.Fold(id, 999, true))

	result := state.Snapshot()
	assert.Equal(t, int64(1), result.Count)
	assert.Equal(t, float64(5), result.Sum)
	assert.Equal(t, float64(5), result.Max)
	assert.True(t, state.Seen(id))
}

func TestState_EventsWithoutValueCountOnly(t *testing.T) {
	state := NewState(uuid.New(), 0)

	require.True(t, state.Fold(uuid.New(), 0, false))
	require.True(t, state.Fold(uuid.New(), 42, true))

	result := state.Snapshot()
	assert.Equal(t, int64(2), result.Count)
	assert.Equal(t, float64(42), result.Sum)
	assert.Equal(t, float64(42), result.Min)
	assert.Equal(t, float64(21), result.Avg)
	assert.Equal(t, 1, state.SampleCount())
}

func TestState_EmptySnapshot(t *testing.T) {
	state := NewState(uuid.New(), 0)

	result := state.Snapshot()
	assert.Equal(t, int64(0), result.Count)
	assert.Equal(t, float64(0), result.Min)
	assert.Equal(t, float64(0), result.Max)
	assert.Equal(t, float64(0), result.Avg)
	assert.Empty(t, result.Percentiles)
}

func TestState_Percentiles(t *testing.T) {
	state := NewState(uuid.New(), 0)
	for i := 1; i <= 100; i++ {
		require.True(t, state.Fold(uuid.New(), float64(i), true))
	}

	result := state.Snapshot()
	assert.Equal(t, float64(50), result.Percentiles[50])
	assert.Equal(t, float64(90), result.Percentiles[90])
	assert.Equal(t, float64(95), result.Percentiles[95])
	assert.Equal(t, float64(99), result.Percentiles[99])
}

func TestState_ReservoirStaysBounded(t *testing.T) {
	state := NewState(uuid.New(), 128)
	for i := 0; i < 1000; i++ {
		state.Fold(uuid.New(), float64(i), true)
	}

	assert.LessOrEqual(t, state.SampleCount(), 128)

	// Exact stats are unaffected by downsampling.
	result := state.Snapshot()
	assert.Equal(t, int64(1000), result.Count)
	assert.Equal(t, float64(0), result.Min)
	assert.Equal(t, float64(999), result.Max)

	// Approximate percentiles remain in the neighborhood.
	assert.InDelta(t, 500, result.Percentiles[50], 60)
	assert.InDelta(t, 900, result.Percentiles[90], 60)
}

func TestState_DownsamplingIsDeterministic(t *testing.T) {
	ids := make([]uuid.UUID, 500)
	for i := range ids {
		ids[i] = uuid.New()
	}

	run := func() Result {
		state := NewState(uuid.Nil, 64)
		for i, id := range ids {
			state.Fold(id, float64(i), true)
		}
		return state.Snapshot()
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestResult_Context(t *testing.T) {
	state := NewState(uuid.New(), 0)
	for i := 1; i <= 10; i++ {
		state.Fold(uuid.New(), float64(i), true)
	}

	ctx := state.Snapshot().Context()
	assert.Equal(t, int64(10), ctx["count"])
	assert.Equal(t, float64(55), ctx["sum"])
	assert.Equal(t, float64(10), ctx["max"])
	assert.Contains(t, ctx, "p50")
	assert.Contains(t, ctx, "p99")
}
