package rules

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	pkgerrors "github.com/streamflow/analytics-core/pkg/errors"
)

func testEngine() (*Engine, *window.Manager) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	mgr := window.NewManager(5*time.Second, time.Minute, 0, log)
	return NewEngine(mgr, log), mgr
}

func minuteRule(id, condition string) *Rule {
	return &Rule{
		ID:        id,
		Name:      id,
		Condition: condition,
		Window:    window.Spec{Kind: window.KindTumbling, Size: time.Minute},
		Enabled:   true,
	}
}

func TestEngine_RegisterValidation(t *testing.T) {
	engine, _ := testEngine()

	t.Run("malformed condition is a parse error", func(t *testing.T) {
		err := engine.Register(minuteRule("bad", "count >"))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsParseError(err))
	})

	t.Run("invalid window spec", func(t *testing.T) {
		rule := minuteRule("bad-window", "count > 1")
		rule.Window.Size = 0
		err := engine.Register(rule)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConfigError(err))
	})

	t.Run("missing id", func(t *testing.T) {
		rule := minuteRule("", "count > 1")
		assert.Error(t, engine.Register(rule))
	})

	t.Run("duplicate id is a config error", func(t *testing.T) {
		require.NoError(t, engine.Register(minuteRule("dup", "count > 1")))
		err := engine.Register(minuteRule("dup", "count > 2"))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConfigError(err))
		assert.Contains(t, err.Error(), "already registered")
	})
}

func TestEngine_UpdateAndToggle(t *testing.T) {
	engine, _ := testEngine()
	require.NoError(t, engine.Register(minuteRule("r1", "count > 1")))

	updated := minuteRule("r1", "count > 100")
	require.NoError(t, engine.Update(updated))
	got, err := engine.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "count > 100", got.Condition)

	assert.Error(t, engine.Update(minuteRule("missing", "count > 1")))

	require.NoError(t, engine.SetEnabled("r1", false))
	got, _ = engine.Get("r1")
	assert.False(t, got.Enabled)

	assert.Error(t, engine.SetEnabled("missing", true))
}

func TestEngine_CloseEvaluation(t *testing.T) {
	engine, mgr := testEngine()
	require.NoError(t, engine.Register(minuteRule("high-count", "count >= 3")))
	require.NoError(t, engine.Register(minuteRule("impossible", "count > 1000")))

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := types.NewEvent("api_error", "gateway", map[string]interface{}{"value": float64(i)})
		ev.Timestamp = base.Add(time.Duration(i) * time.Second)
		res := engine.Route(ev)
		// Both rules share the same spec, so they share windows; the
		// second fold of the same event id dedupes.
		assert.Equal(t, window.FoldResult{Folded: 1, Duplicates: 1}, res)
	}

	closing, _ := mgr.Sweep(base.Add(time.Minute + 5*time.Second))
	require.Len(t, closing, 1)

	matches := engine.EvaluateWindow(closing[0], base.Add(time.Minute+5*time.Second))
	require.Len(t, matches, 1)
	assert.Equal(t, "high-count", matches[0].RuleID)
	assert.Equal(t, "api_error", matches[0].Partition)
	assert.Equal(t, int64(5), matches[0].Snapshot.Count)
}

func TestEngine_DisabledRuleDoesNotMatch(t *testing.T) {
	engine, mgr := testEngine()
	rule := minuteRule("r1", "count >= 1")
	require.NoError(t, engine.Register(rule))

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ev := types.NewEvent("api_error", "gateway", nil)
	ev.Timestamp = base
	engine.Route(ev)

	require.NoError(t, engine.SetEnabled("r1", false))
	closing, _ := mgr.Sweep(base.Add(2 * time.Minute))
	require.Len(t, closing, 1)
	assert.Empty(t, engine.EvaluateWindow(closing[0], base.Add(2*time.Minute)))
}

func TestEngine_EvaluationErrorIsNoMatch(t *testing.T) {
	engine, mgr := testEngine()
	require.NoError(t, engine.Register(minuteRule("bad-types", `count > "ten"`)))

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ev := types.NewEvent("api_error", "gateway", nil)
	ev.Timestamp = base
	engine.Route(ev)

	closing, _ := mgr.Sweep(base.Add(2 * time.Minute))
	require.Len(t, closing, 1)
	assert.Empty(t, engine.EvaluateWindow(closing[0], base.Add(2*time.Minute)))

	_, errs := engine.Stats()
	assert.Equal(t, uint64(1), errs)
}

func TestEngine_EventTypeFilter(t *testing.T) {
	engine, mgr := testEngine()
	rule := minuteRule("errors-only", "count >= 1")
	rule.EventTypes = []string{"api_error"}
	require.NoError(t, engine.Register(rule))

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	ev := types.NewEvent("user_activity", "web", nil)
	ev.Timestamp = base
	res := engine.Route(ev)
	assert.Equal(t, window.FoldResult{}, res)
	assert.Equal(t, 0, mgr.OpenCount())
}

func TestEngine_TickAbsenceRule(t *testing.T) {
	engine, _ := testEngine()
	rule := minuteRule("heartbeat-missing", "count == 0")
	rule.Continuous = true
	require.NoError(t, engine.Register(rule))

	matches := engine.EvaluateTick(time.Now())
	require.Len(t, matches, 1)
	assert.Equal(t, "heartbeat-missing", matches[0].RuleID)
	assert.Equal(t, int64(0), matches[0].Snapshot.Count)
}

func TestEngine_TickEvaluatesOpenWindows(t *testing.T) {
	engine, _ := testEngine()
	rule := minuteRule("live-count", "count >= 2")
	rule.Continuous = true
	require.NoError(t, engine.Register(rule))

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := types.NewEvent("api_error", "gateway", nil)
		ev.Timestamp = base.Add(time.Duration(i) * time.Second)
		engine.Route(ev)
	}

	matches := engine.EvaluateTick(base.Add(10 * time.Second))
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].Snapshot.Count)
}

func TestRule_PartitionOverrides(t *testing.T) {
	ev := types.NewEvent("api_error", "gateway", map[string]interface{}{"region": "eu-west"})

	tests := []struct {
		name        string
		partitionBy string
		want        string
	}{
		{"default is event type", "", "api_error"},
		{"explicit type", "type", "api_error"},
		{"source", "source", "gateway"},
		{"data field", "data.region", "eu-west"},
		{"missing data field", "data.zone", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := minuteRule("r", "count > 1")
			rule.Window.PartitionBy = tt.partitionBy
			assert.Equal(t, tt.want, rule.Partition(ev))
		})
	}
}

func TestRule_ValueExtraction(t *testing.T) {
	rule := minuteRule("r", "count > 1")

	ev := types.NewEvent("m", "s", map[string]interface{}{"value": 12.5})
	v, ok := rule.Value(ev)
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	ev = types.NewEvent("m", "s", map[string]interface{}{"value": 7})
	v, ok = rule.Value(ev)
	assert.True(t, ok)
	assert.Equal(t, float64(7), v)

	ev = types.NewEvent("m", "s", map[string]interface{}{"other": 1})
	_, ok = rule.Value(ev)
	assert.False(t, ok)

	rule.Window.ValueField = "data_size"
	ev = types.NewEvent("m", "s", map[string]interface{}{"data_size": int64(2048)})
	v, ok = rule.Value(ev)
	assert.True(t, ok)
	assert.Equal(t, float64(2048), v)
}
