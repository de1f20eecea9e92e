package stream

import (
	"context"
	"errors"
	"time"

	"github.com/streamflow/analytics-core/internal/core/types"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
// Producers decide whether to block, drop, or shed upstream.
var ErrQueueFull = errors.New("event queue full")

// Queue is the boundary between the intake layer and the pipeline.
// Delivery is at-least-once: consumers must tolerate redelivery, which
// the per-window seen-id sets absorb downstream.
type Queue interface {
	// Enqueue adds an event, failing fast with ErrQueueFull at
	// capacity or the context error if ctx is done.
	Enqueue(ctx context.Context, ev *types.Event) error

	// Dequeue pops the next event, waiting at most timeout. The
	// second return is false on timeout, so worker loops regularly
	// come up for air and notice shutdown.
	Dequeue(timeout time.Duration) (*types.Event, bool)

	// Depth reports how many events are waiting.
	Depth() int

	// Capacity reports the maximum depth.
	Capacity() int
}

// MemoryQueue is the in-process Queue used by the embedded pipeline
// and by tests. A bounded channel does all the work.
type MemoryQueue struct {
	ch chan *types.Event
}

// NewMemoryQueue creates a queue holding at most size events.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 4096
	}
	return &MemoryQueue{ch: make(chan *types.Event, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, ev *types.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(timeout time.Duration) (*types.Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		return ev, true
	case <-timer.C:
		return nil, false
	}
}

func (q *MemoryQueue) Depth() int    { return len(q.ch) }
func (q *MemoryQueue) Capacity() int { return cap(q.ch) }
