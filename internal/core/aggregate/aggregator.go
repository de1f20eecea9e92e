package aggregate

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// DefaultMaxSamples caps the per-window percentile reservoir. Above the
// cap the reservoir is deterministically downsampled, so percentiles
// become approximate while count/sum/min/max/avg stay exact.
const DefaultMaxSamples = 10000

// Percentiles reported in every snapshot.
var reportedPercentiles = []int{50, 90, 95, 99}

// Result is an immutable snapshot of a window's aggregation state,
// taken under the window lock and safe to hand to rule evaluation.
type Result struct {
	WindowID    uuid.UUID       `json:"window_id"`
	Count       int64           `json:"count"`
	Sum         float64         `json:"sum"`
	Min         float64         `json:"min"`
	Max         float64         `json:"max"`
	Avg         float64         `json:"avg"`
	Percentiles map[int]float64 `json:"percentiles"`
}

// Context exposes the snapshot to the expression evaluator. Percentile
// keys surface as p50, p90, p95, p99.
func (r Result) Context() map[string]interface{} {
	ctx := map[string]interface{}{
		"count": r.Count,
		"sum":   r.Sum,
		"min":   r.Min,
		"max":   r.Max,
		"avg":   r.Avg,
	}
	for p, v := range r.Percentiles {
		switch p {
		case 50:
			ctx["p50"] = v
		case 90:
			ctx["p90"] = v
		case 95:
			ctx["p95"] = v
		case 99:
			ctx["p99"] = v
		}
	}
	return ctx
}

// State accumulates statistics for one window. It is not goroutine-safe
// on its own; the owning window's lock serializes access.
type State struct {
	windowID uuid.UUID

	count int64
	sum   float64
	min   float64
	max   float64

	// Bounded percentile reservoir. stride grows by doubling every
	// time the reservoir overflows; only every stride-th valued event
	// is admitted afterwards, which keeps downsampling deterministic
	// under redelivery.
	samples    []float64
	maxSamples int
	stride     int
	strideSeen int

	// Seen event ids absorb at-least-once redelivery. The set lives
	// exactly as long as the window and is freed on eviction.
	seen map[uuid.UUID]struct{}
}

// NewState creates aggregation state for a window. maxSamples <= 0
// falls back to DefaultMaxSamples.
func NewState(windowID uuid.UUID, maxSamples int) *State {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &State{
		windowID:   windowID,
		min:        math.Inf(1),
		max:        math.Inf(-1),
		samples:    make([]float64, 0, 64),
		maxSamples: maxSamples,
		stride:     1,
		seen:       make(map[uuid.UUID]struct{}),
	}
}

// Fold incorporates one event. The second fold of the same event id is
// a no-op and returns false. Events without a numeric value still
// count, but contribute nothing to sum/min/max/percentiles.
func (s *State) Fold(eventID uuid.UUID, value float64, hasValue bool) bool {
	if _, dup := s.seen[eventID]; dup {
		return false
	}
	s.seen[eventID] = struct{}{}

	s.count++
	if !hasValue {
		return true
	}

	s.sum += value
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	s.admitSample(value)

	return true
}

func (s *State) admitSample(value float64) {
	s.strideSeen++
	if s.strideSeen < s.stride {
		return
	}
	s.strideSeen = 0

	s.samples = append(s.samples, value)
	if len(s.samples) < s.maxSamples {
		return
	}

	// Overflow: keep every second retained sample and double the
	// admission stride.
	kept := s.samples[:0]
	for i := 0; i < len(s.samples); i += 2 {
		kept = append(kept, s.samples[i])
	}
	s.samples = kept
	s.stride *= 2
}

// Snapshot computes the immutable result for the current state.
func (s *State) Snapshot() Result {
	result := Result{
		WindowID:    s.windowID,
		Count:       s.count,
		Sum:         s.sum,
		Percentiles: make(map[int]float64, len(reportedPercentiles)),
	}

	if !math.IsInf(s.min, 1) {
		result.Min = s.min
	}
	if !math.IsInf(s.max, -1) {
		result.Max = s.max
	}
	if s.count > 0 {
		result.Avg = s.sum / float64(s.count)
	}

	if len(s.samples) > 0 {
		sorted := make([]float64, len(s.samples))
		copy(sorted, s.samples)
		sort.Float64s(sorted)
		for _, p := range reportedPercentiles {
			result.Percentiles[p] = percentile(sorted, p)
		}
	}

	return result
}

// Seen reports whether an event id has already been folded.
func (s *State) Seen(eventID uuid.UUID) bool {
	_, ok := s.seen[eventID]
	return ok
}

// SampleCount returns the current reservoir size.
func (s *State) SampleCount() int { return len(s.samples) }

// percentile uses nearest-rank on a sorted slice.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
