package window

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamflow/analytics-core/internal/core/aggregate"
	"github.com/streamflow/analytics-core/pkg/errors"
)

// Kind selects the windowing strategy for a rule.
type Kind string

const (
	KindTumbling Kind = "tumbling"
	KindSliding  Kind = "sliding"
	KindSession  Kind = "session"
)

// ParseKind converts a string from config or the API into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTumbling:
		return KindTumbling, nil
	case KindSliding:
		return KindSliding, nil
	case KindSession:
		return KindSession, nil
	default:
		return "", errors.NewConfigError("window.kind", "unknown window kind %q", s)
	}
}

// State is the lifecycle phase of a window. Transitions only move
// forward: open -> closing -> closed -> evicted.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Spec describes the windowing of a single rule. Size is the window
// span for tumbling and sliding kinds, Slide the pane advance for
// sliding, SessionGap the inactivity timeout for sessions.
type Spec struct {
	Kind        Kind          `json:"kind" yaml:"kind"`
	Size        time.Duration `json:"size" yaml:"size"`
	Slide       time.Duration `json:"slide" yaml:"slide"`
	SessionGap  time.Duration `json:"session_gap" yaml:"session_gap"`
	PartitionBy string        `json:"partition_by" yaml:"partition_by"`
	ValueField  string        `json:"value_field" yaml:"value_field"`
}

// Validate checks the spec at rule registration time.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindTumbling:
		if s.Size <= 0 {
			return errors.NewConfigError("window.size", "tumbling windows need a positive size")
		}
	case KindSliding:
		if s.Size <= 0 {
			return errors.NewConfigError("window.size", "sliding windows need a positive size")
		}
		if s.Slide <= 0 {
			return errors.NewConfigError("window.slide", "sliding windows need a positive slide")
		}
		if s.Slide > s.Size {
			return errors.NewConfigError("window.slide", "slide %s exceeds size %s", s.Slide, s.Size)
		}
	case KindSession:
		if s.SessionGap <= 0 {
			return errors.NewConfigError("window.session_gap", "session windows need a positive gap")
		}
	default:
		return errors.NewConfigError("window.kind", "unknown window kind %q", string(s.Kind))
	}
	return nil
}

// Key identifies the spec inside the manager's window index. Two rules
// with identical specs share windows for the same partition.
func (s Spec) Key() string {
	return fmt.Sprintf("%s/%d/%d/%d/%s/%s",
		s.Kind, s.Size.Nanoseconds(), s.Slide.Nanoseconds(),
		s.SessionGap.Nanoseconds(), s.PartitionBy, s.ValueField)
}

// Window is one pane of aggregation state. The mutex serializes folds
// and snapshots; lifecycle state is guarded by the manager.
type Window struct {
	ID        uuid.UUID
	SpecKey   string
	Spec      Spec
	Partition string
	Start     time.Time
	End       time.Time

	mu          sync.Mutex
	state       State
	lastEventAt time.Time
	closedAt    time.Time
	agg         *aggregate.State
}

func newWindow(spec Spec, partition string, start, end time.Time, maxSamples int) *Window {
	id := uuid.New()
	return &Window{
		ID:        id,
		SpecKey:   spec.Key(),
		Spec:      spec,
		Partition: partition,
		Start:     start,
		End:       end,
		state:     StateOpen,
		agg:       aggregate.NewState(id, maxSamples),
	}
}

// State returns the current lifecycle phase.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot takes an immutable aggregation result under the window lock.
func (w *Window) Snapshot() aggregate.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.agg == nil {
		return aggregate.Result{WindowID: w.ID}
	}
	return w.agg.Snapshot()
}

// fold applies one event. Returns false when the event id was already
// folded. Callers must have verified the window is open.
func (w *Window) fold(eventID uuid.UUID, value float64, hasValue bool, ts time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return false
	}
	if !w.agg.Fold(eventID, value, hasValue) {
		return false
	}
	if ts.After(w.lastEventAt) {
		w.lastEventAt = ts
	}
	if w.Spec.Kind == KindSession {
		w.End = ts.Add(w.Spec.SessionGap)
	}
	return true
}

func (w *Window) transition(to State, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if to <= w.state {
		return
	}
	w.state = to
	if to == StateClosed || to == StateClosing {
		if w.closedAt.IsZero() {
			w.closedAt = now
		}
	}
	if to == StateEvicted {
		w.agg = nil
	}
}
