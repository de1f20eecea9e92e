package window

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid tumbling", Spec{Kind: KindTumbling, Size: time.Minute}, false},
		{"tumbling without size", Spec{Kind: KindTumbling}, true},
		{"valid sliding", Spec{Kind: KindSliding, Size: time.Minute, Slide: 10 * time.Second}, false},
		{"sliding without slide", Spec{Kind: KindSliding, Size: time.Minute}, true},
		{"slide larger than size", Spec{Kind: KindSliding, Size: 10 * time.Second, Slide: time.Minute}, true},
		{"valid session", Spec{Kind: KindSession, SessionGap: 30 * time.Second}, false},
		{"session without gap", Spec{Kind: KindSession}, true},
		{"unknown kind", Spec{Kind: "hopping", Size: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Tumbling ")
	require.NoError(t, err)
	assert.Equal(t, KindTumbling, kind)

	_, err = ParseKind("bogus")
	assert.Error(t, err)
}

func TestManager_TumblingFold(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	res := mgr.Fold(spec, "api_error", uuid.New(), base.Add(10*time.Second), 1, true)
	assert.Equal(t, FoldResult{Folded: 1}, res)

	res = mgr.Fold(spec, "api_error", uuid.New(), base.Add(50*time.Second), 1, true)
	assert.Equal(t, FoldResult{Folded: 1}, res)

	// Different minute, different pane.
	res = mgr.Fold(spec, "api_error", uuid.New(), base.Add(70*time.Second), 1, true)
	assert.Equal(t, FoldResult{Folded: 1}, res)
	assert.Equal(t, 2, mgr.OpenCount())

	windows := mgr.OpenWindows(spec)
	require.Len(t, windows, 2)
}

func TestManager_PartitionsAreIsolated(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	ts := time.Date(2026, 8, 24, 12, 0, 30, 0, time.UTC)

	mgr.Fold(spec, "api_error", uuid.New(), ts, 1, true)
	mgr.Fold(spec, "api_error", uuid.New(), ts, 1, true)
	mgr.Fold(spec, "user_activity", uuid.New(), ts, 1, true)

	windows := mgr.OpenWindows(spec)
	require.Len(t, windows, 2)
	counts := map[string]int64{}
	for _, w := range windows {
		counts[w.Partition] = w.Snapshot().Count
	}
	assert.Equal(t, int64(2), counts["api_error"])
	assert.Equal(t, int64(1), counts["user_activity"])
}

func TestManager_DuplicateEventID(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	ts := time.Date(2026, 8, 24, 12, 0, 30, 0, time.UTC)
	id := uuid.New()

	assert.Equal(t, FoldResult{Folded: 1}, mgr.Fold(spec, "p", id, ts, 1, true))
	assert.Equal(t, FoldResult{Duplicates: 1}, mgr.Fold(spec, "p", id, ts, 1, true))
}

func TestManager_SlidingPanesOverlap(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindSliding, Size: 10 * time.Second, Slide: 5 * time.Second}
	ts := time.Date(2026, 8, 24, 12, 0, 7, 0, time.UTC)

	res := mgr.Fold(spec, "p", uuid.New(), ts, 3, true)
	assert.Equal(t, FoldResult{Folded: 2}, res)

	windows := mgr.OpenWindows(spec)
	require.Len(t, windows, 2)
	for _, w := range windows {
		assert.Equal(t, int64(1), w.Snapshot().Count)
	}
}

func TestManager_SweepLifecycle(t *testing.T) {
	mgr := NewManager(5*time.Second, 30*time.Second, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mgr.Fold(spec, "p", uuid.New(), start.Add(10*time.Second), 1, true)
	require.Equal(t, 1, mgr.OpenCount())

	// Still inside grace.
	closing, evicted := mgr.Sweep(start.Add(time.Minute + 4*time.Second))
	assert.Empty(t, closing)
	assert.Zero(t, evicted)

	closeTime := start.Add(time.Minute + 5*time.Second)
	closing, _ = mgr.Sweep(closeTime)
	require.Len(t, closing, 1)
	assert.Equal(t, StateClosing, closing[0].State())
	assert.Equal(t, 0, mgr.OpenCount())

	mgr.MarkClosed(closing[0], closeTime)
	assert.Equal(t, StateClosed, closing[0].State())

	// Retention holds the closed window for a while.
	_, evicted = mgr.Sweep(closeTime.Add(29 * time.Second))
	assert.Zero(t, evicted)

	_, evicted = mgr.Sweep(closeTime.Add(30 * time.Second))
	assert.Equal(t, 1, evicted)
}

func TestManager_LateEventAfterCloseIsDropped(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mgr.Fold(spec, "p", uuid.New(), start.Add(10*time.Second), 1, true)
	closeTime := start.Add(time.Minute + 5*time.Second)
	closing, _ := mgr.Sweep(closeTime)
	require.Len(t, closing, 1)
	mgr.MarkClosed(closing[0], closeTime)

	res := mgr.Fold(spec, "p", uuid.New(), start.Add(20*time.Second), 1, true)
	assert.Equal(t, FoldResult{LateDropped: 1}, res)
	assert.Equal(t, int64(1), closing[0].Snapshot().Count)
}

func TestManager_LateEventAfterEvictionIsDropped(t *testing.T) {
	mgr := NewManager(5*time.Second, 10*time.Second, 0, testLogger())
	spec := Spec{Kind: KindTumbling, Size: time.Minute}
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mgr.Fold(spec, "p", uuid.New(), start.Add(10*time.Second), 1, true)
	closeTime := start.Add(time.Minute + 5*time.Second)
	closing, _ := mgr.Sweep(closeTime)
	mgr.MarkClosed(closing[0], closeTime)
	_, evicted := mgr.Sweep(closeTime.Add(10 * time.Second))
	require.Equal(t, 1, evicted)

	// Advance the watermark past the evicted pane's deadline, then
	// deliver a straggler for it.
	mgr.Fold(spec, "p", uuid.New(), start.Add(3*time.Minute), 1, true)
	res := mgr.Fold(spec, "p", uuid.New(), start.Add(20*time.Second), 1, true)
	assert.Equal(t, FoldResult{LateDropped: 1}, res)
	assert.Equal(t, 1, mgr.OpenCount())
}

func TestManager_SessionExtendsWithActivity(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindSession, SessionGap: 30 * time.Second}
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mgr.Fold(spec, "user-1", uuid.New(), base, 1, true)
	mgr.Fold(spec, "user-1", uuid.New(), base.Add(20*time.Second), 1, true)
	mgr.Fold(spec, "user-1", uuid.New(), base.Add(45*time.Second), 1, true)

	windows := mgr.OpenWindows(spec)
	require.Len(t, windows, 1)
	assert.Equal(t, int64(3), windows[0].Snapshot().Count)
	assert.Equal(t, base.Add(75*time.Second), windows[0].End)

	// Gap exceeded: a new session starts.
	mgr.Fold(spec, "user-1", uuid.New(), base.Add(2*time.Minute), 1, true)
	windows = mgr.OpenWindows(spec)
	require.Len(t, windows, 2)
}

func TestManager_SessionLateEventIsDropped(t *testing.T) {
	mgr := NewManager(5*time.Second, time.Minute, 0, testLogger())
	spec := Spec{Kind: KindSession, SessionGap: 30 * time.Second}
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	mgr.Fold(spec, "user-1", uuid.New(), base, 1, true)
	closeTime := base.Add(35 * time.Second)
	closing, _ := mgr.Sweep(closeTime)
	require.Len(t, closing, 1)
	mgr.MarkClosed(closing[0], closeTime)

	res := mgr.Fold(spec, "user-1", uuid.New(), base.Add(10*time.Second), 1, true)
	assert.Equal(t, FoldResult{LateDropped: 1}, res)
}
