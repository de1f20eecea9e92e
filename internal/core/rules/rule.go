package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamflow/analytics-core/internal/core/aggregate"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
	"github.com/streamflow/analytics-core/pkg/errors"
)

// Rule ties a condition to a window spec and describes what to do when
// the condition holds over a closed window.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Condition   string      `json:"condition" yaml:"condition"`
	Window      window.Spec `json:"window" yaml:"window"`

	// EventTypes filters which events feed this rule's windows. Empty
	// means every event.
	EventTypes []string `json:"event_types,omitempty" yaml:"event_types,omitempty"`

	// Continuous rules are also evaluated on the engine tick against
	// open windows, so absence conditions (count == 0) can fire
	// without any event arriving.
	Continuous bool `json:"continuous" yaml:"continuous"`

	Severity           types.Severity `json:"severity" yaml:"severity"`
	Channels           []string       `json:"channels" yaml:"channels"`
	Suppression        time.Duration  `json:"suppression" yaml:"suppression"`
	EscalationWindow   time.Duration  `json:"escalation_window" yaml:"escalation_window"`
	EscalationChannels []string       `json:"escalation_channels,omitempty" yaml:"escalation_channels,omitempty"`

	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks everything except the condition grammar, which the
// engine checks by compiling it.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.NewConfigError("rule.id", "rule id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.NewConfigError("rule.name", "rule name is required")
	}
	if strings.TrimSpace(r.Condition) == "" {
		return errors.NewConfigError("rule.condition", "rule condition is required")
	}
	if err := r.Window.Validate(); err != nil {
		return err
	}
	if r.Severity == "" {
		r.Severity = types.SeverityMedium
	} else {
		r.Severity = types.ParseSeverity(string(r.Severity))
	}
	if r.Suppression < 0 {
		return errors.NewConfigError("rule.suppression", "suppression cannot be negative")
	}
	return nil
}

// AppliesTo reports whether an event feeds this rule.
func (r *Rule) AppliesTo(ev *types.Event) bool {
	if len(r.EventTypes) == 0 {
		return true
	}
	for _, t := range r.EventTypes {
		if t == ev.Type {
			return true
		}
	}
	return false
}

// Partition derives the window partition key for an event. The default
// is the event type; "source" and "data.<field>" override it.
func (r *Rule) Partition(ev *types.Event) string {
	by := r.Window.PartitionBy
	switch {
	case by == "" || by == "type":
		return ev.Type
	case by == "source":
		return ev.Source
	case strings.HasPrefix(by, "data."):
		if v, ok := ev.Data[strings.TrimPrefix(by, "data.")]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	default:
		return ev.Type
	}
}

// Value extracts the numeric aggregation value from an event. The
// second return is false when the event carries no usable value, in
// which case it still counts but contributes no sum/min/max sample.
func (r *Rule) Value(ev *types.Event) (float64, bool) {
	field := r.Window.ValueField
	if field == "" {
		field = "value"
	}
	raw, ok := ev.Data[field]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Match is one positive rule evaluation over one window close (or one
// tick for continuous rules).
type Match struct {
	ID        uuid.UUID        `json:"id"`
	RuleID    string           `json:"rule_id"`
	RuleName  string           `json:"rule_name"`
	WindowID  uuid.UUID        `json:"window_id"`
	Partition string           `json:"partition"`
	Severity  types.Severity   `json:"severity"`
	Snapshot  aggregate.Result `json:"snapshot"`
	MatchedAt time.Time        `json:"matched_at"`
}
