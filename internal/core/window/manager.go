package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FoldResult reports what happened to a single event across all the
// panes its timestamp maps to.
type FoldResult struct {
	Folded      int
	Duplicates  int
	LateDropped int
}

// Manager owns every live window. It is safe for concurrent use: the
// index is guarded by mu, per-window mutation by each window's own
// lock, so folds into different windows never contend.
type Manager struct {
	log        *logrus.Logger
	grace      time.Duration
	retention  time.Duration
	maxSamples int

	mu        sync.RWMutex
	windows   map[string]*Window
	sessions  map[string]string
	watermark time.Time
}

// NewManager creates a window manager. grace is how long a window stays
// open past its end for late events, retention how long closed windows
// remain queryable before eviction.
func NewManager(grace, retention time.Duration, maxSamples int, log *logrus.Logger) *Manager {
	return &Manager{
		log:        log,
		grace:      grace,
		retention:  retention,
		maxSamples: maxSamples,
		windows:    make(map[string]*Window),
		sessions:   make(map[string]string),
	}
}

func paneKey(specKey, partition string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", specKey, partition, start.UnixNano())
}

// Fold routes one event into every pane covering its timestamp,
// creating panes on demand. Events for panes that already closed are
// dropped and counted, never folded.
func (m *Manager) Fold(spec Spec, partition string, eventID uuid.UUID, ts time.Time, value float64, hasValue bool) FoldResult {
	var result FoldResult

	m.mu.Lock()
	if ts.After(m.watermark) {
		m.watermark = ts
	}
	watermark := m.watermark

	if spec.Kind == KindSession {
		w, late := m.sessionWindowLocked(spec, partition, ts, watermark)
		m.mu.Unlock()
		if late {
			result.LateDropped++
			return result
		}
		m.foldInto(w, eventID, ts, value, hasValue, &result)
		return result
	}

	targets := make([]*Window, 0, 2)
	for _, start := range panes(spec, ts) {
		key := paneKey(spec.Key(), partition, start)
		w, ok := m.windows[key]
		if !ok {
			// A missing pane whose close deadline already passed the
			// watermark was evicted; re-opening it would double-count.
			if start.Add(spec.Size).Add(m.grace).Before(watermark) {
				result.LateDropped++
				continue
			}
			w = newWindow(spec, partition, start, start.Add(spec.Size), m.maxSamples)
			m.windows[key] = w
		}
		targets = append(targets, w)
	}
	m.mu.Unlock()

	for _, w := range targets {
		m.foldInto(w, eventID, ts, value, hasValue, &result)
	}
	return result
}

func (m *Manager) foldInto(w *Window, eventID uuid.UUID, ts time.Time, value float64, hasValue bool, result *FoldResult) {
	state := w.State()
	if state != StateOpen {
		result.LateDropped++
		return
	}
	if w.fold(eventID, value, hasValue, ts) {
		result.Folded++
	} else if w.State() != StateOpen {
		result.LateDropped++
	} else {
		result.Duplicates++
	}
}

// sessionWindowLocked resolves the session pane for (spec, partition).
// Caller holds m.mu.
func (m *Manager) sessionWindowLocked(spec Spec, partition string, ts time.Time, watermark time.Time) (*Window, bool) {
	sessKey := spec.Key() + "|" + partition
	if key, ok := m.sessions[sessKey]; ok {
		if w, ok := m.windows[key]; ok {
			if w.State() == StateOpen && !ts.After(w.End) {
				return w, false
			}
			if w.State() != StateOpen && !ts.After(w.End) {
				// Belongs to the closed session: late.
				return nil, true
			}
		}
	}
	if ts.Add(spec.SessionGap).Add(m.grace).Before(watermark) {
		return nil, true
	}
	w := newWindow(spec, partition, ts, ts.Add(spec.SessionGap), m.maxSamples)
	key := paneKey(spec.Key(), partition, ts)
	m.windows[key] = w
	m.sessions[sessKey] = key
	return w, false
}

// panes lists the pane start times covering ts for tumbling and
// sliding specs. Sliding windows are overlapping tumbling panes
// advancing by Slide.
func panes(spec Spec, ts time.Time) []time.Time {
	if spec.Kind == KindTumbling {
		return []time.Time{ts.Truncate(spec.Size)}
	}
	starts := make([]time.Time, 0, int(spec.Size/spec.Slide)+1)
	for start := ts.Truncate(spec.Slide); ts.Sub(start) < spec.Size; start = start.Add(-spec.Slide) {
		starts = append(starts, start)
	}
	return starts
}

// Sweep advances lifecycle state. Open windows past end+grace move to
// closing and are returned for rule evaluation; closed windows past
// retention are evicted and forgotten. Call MarkClosed once the
// returned windows have been evaluated.
func (m *Manager) Sweep(now time.Time) (closing []*Window, evicted int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, w := range m.windows {
		switch w.State() {
		case StateOpen:
			if !now.Before(w.End.Add(m.grace)) {
				w.transition(StateClosing, now)
				closing = append(closing, w)
			}
		case StateClosed:
			if !now.Before(w.closedAtTime().Add(m.retention)) {
				w.transition(StateEvicted, now)
				delete(m.windows, key)
				if w.Spec.Kind == KindSession {
					sessKey := w.SpecKey + "|" + w.Partition
					if m.sessions[sessKey] == key {
						delete(m.sessions, sessKey)
					}
				}
				evicted++
			}
		}
	}
	if len(closing) > 0 || evicted > 0 {
		m.log.WithFields(logrus.Fields{
			"closing": len(closing),
			"evicted": evicted,
			"open":    m.openCountLocked(),
		}).Debug("Window sweep completed")
	}
	return closing, evicted
}

// MarkClosed finishes the closing phase after evaluation.
func (m *Manager) MarkClosed(w *Window, now time.Time) {
	w.transition(StateClosed, now)
}

// OpenWindows returns the currently open windows for a spec, used by
// continuous rules evaluating on the tick.
func (m *Manager) OpenWindows(spec Spec) []*Window {
	specKey := spec.Key()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Window
	for _, w := range m.windows {
		if w.SpecKey == specKey && w.State() == StateOpen {
			out = append(out, w)
		}
	}
	return out
}

// OpenCount reports how many windows are currently open.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openCountLocked()
}

func (m *Manager) openCountLocked() int {
	n := 0
	for _, w := range m.windows {
		if w.State() == StateOpen {
			n++
		}
	}
	return n
}

func (w *Window) closedAtTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closedAt
}
