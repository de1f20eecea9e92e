package stream

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamflow/analytics-core/internal/core/alerts"
	"github.com/streamflow/analytics-core/internal/core/metrics"
	"github.com/streamflow/analytics-core/internal/core/rules"
	"github.com/streamflow/analytics-core/internal/core/types"
	"github.com/streamflow/analytics-core/internal/core/window"
)

// Options tunes the coordinator's worker pool and timers.
type Options struct {
	Workers        int
	DequeueTimeout time.Duration
	SweepInterval  time.Duration
	TickInterval   time.Duration
	HighWaterMark  int
}

func (o *Options) withDefaults(queueCap int) {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.DequeueTimeout <= 0 {
		o.DequeueTimeout = 250 * time.Millisecond
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 10 * time.Second
	}
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = queueCap * 3 / 4
	}
}

// Stats is a point-in-time snapshot of coordinator throughput.
type Stats struct {
	EventsProcessed uint64    `json:"events_processed"`
	Folded          uint64    `json:"folded"`
	Duplicates      uint64    `json:"duplicates"`
	LateDropped     uint64    `json:"late_dropped"`
	QueueDepth      int       `json:"queue_depth"`
	Backpressure    bool      `json:"backpressure"`
	Workers         int       `json:"workers"`
	StartedAt       time.Time `json:"started_at"`
}

// Coordinator owns the worker pool that drains the event queue into
// the window manager, plus the sweeper that drives window lifecycle,
// rule evaluation, and alerting.
type Coordinator struct {
	log     *logrus.Logger
	opts    Options
	queue   Queue
	engine  *rules.Engine
	windows *window.Manager
	alerts  *alerts.Manager
	metrics *metrics.Collector

	// OnBackpressure is called on transitions across the high-water
	// mark, so the intake layer can shed or slow down. Optional.
	OnBackpressure func(active bool)

	// OnMatch is called for every rule match before alert processing,
	// feeding live dashboards. Optional.
	OnMatch func(match rules.Match)

	mu           sync.Mutex
	running      bool
	backpressure bool
	stats        Stats
	lastEvals    uint64
	lastFired    uint64
	lastFailures uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCoordinator wires the pipeline together. metrics may be nil.
func NewCoordinator(queue Queue, engine *rules.Engine, windows *window.Manager,
	alertMgr *alerts.Manager, collector *metrics.Collector, opts Options, log *logrus.Logger) *Coordinator {
	opts.withDefaults(queue.Capacity())
	return &Coordinator{
		log:     log,
		opts:    opts,
		queue:   queue,
		engine:  engine,
		windows: windows,
		alerts:  alertMgr,
		metrics: collector,
	}
}

// Start launches the worker pool and the sweeper. It is idempotent
// while running.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stats = Stats{Workers: c.opts.Workers, StartedAt: time.Now()}
	c.stop = make(chan struct{})
	c.mu.Unlock()

	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	c.wg.Add(1)
	go c.sweeper(ctx)

	c.log.WithFields(logrus.Fields{
		"workers":         c.opts.Workers,
		"sweep_interval":  c.opts.SweepInterval,
		"tick_interval":   c.opts.TickInterval,
		"high_water_mark": c.opts.HighWaterMark,
	}).Info("Stream coordinator started")
}

// Stop drains the pool. Events still in the queue stay there; callers
// that need a clean drain submit no new events and wait for Depth()
// to reach zero before stopping.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.mu.Unlock()

	c.wg.Wait()
	c.log.Info("Stream coordinator stopped")
}

// Submit enqueues one event, surfacing backpressure transitions.
func (c *Coordinator) Submit(ctx context.Context, ev *types.Event) error {
	if err := c.queue.Enqueue(ctx, ev); err != nil {
		return err
	}
	c.updateBackpressure()
	return nil
}

func (c *Coordinator) updateBackpressure() {
	depth := c.queue.Depth()
	c.metrics.SetQueueDepth(depth)

	c.mu.Lock()
	var transition *bool
	if !c.backpressure && depth >= c.opts.HighWaterMark {
		c.backpressure = true
		t := true
		transition = &t
	} else if c.backpressure && depth <= c.opts.HighWaterMark/2 {
		c.backpressure = false
		t := false
		transition = &t
	}
	hook := c.OnBackpressure
	c.mu.Unlock()

	if transition == nil {
		return
	}
	if *transition {
		c.log.WithField("depth", depth).Warn("Queue crossed high-water mark, signaling backpressure")
	} else {
		c.log.WithField("depth", depth).Info("Queue drained below high-water mark")
	}
	if hook != nil {
		hook(*transition)
	}
}

// worker drains the queue with timeout-based reads, so shutdown and
// the stop channel are observed even on an idle stream.
func (c *Coordinator) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := c.queue.Dequeue(c.opts.DequeueTimeout)
		if !ok {
			continue
		}
		c.process(ev)
	}
}

func (c *Coordinator) process(ev *types.Event) {
	start := time.Now()
	res := c.engine.Route(ev)
	c.metrics.ObserveFold(time.Since(start))
	c.metrics.AddFolded(res.Folded)
	c.metrics.AddDuplicates(res.Duplicates)
	c.metrics.AddLateDropped(res.LateDropped)

	c.mu.Lock()
	c.stats.EventsProcessed++
	c.stats.Folded += uint64(res.Folded)
	c.stats.Duplicates += uint64(res.Duplicates)
	c.stats.LateDropped += uint64(res.LateDropped)
	c.mu.Unlock()

	if res.LateDropped > 0 {
		c.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.Type,
			"dropped":    res.LateDropped,
		}).Debug("Late event dropped")
	}
	c.updateBackpressure()
}

// sweeper is the single goroutine driving window lifecycle and the
// continuous-rule tick. Keeping it singular means close evaluation
// happens exactly once per window.
func (c *Coordinator) sweeper(ctx context.Context) {
	defer c.wg.Done()
	sweep := time.NewTicker(c.opts.SweepInterval)
	tick := time.NewTicker(c.opts.TickInterval)
	defer sweep.Stop()
	defer tick.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-sweep.C:
			c.sweepOnce(ctx, time.Now())
		case <-tick.C:
			now := time.Now()
			c.dispatch(ctx, c.engine.EvaluateTick(now))
			c.syncCounters()
		}
	}
}

// sweepOnce closes due windows, evaluates their rules, and feeds
// matches to the alert manager.
func (c *Coordinator) sweepOnce(ctx context.Context, now time.Time) {
	closing, _ := c.windows.Sweep(now)
	for _, w := range closing {
		c.dispatch(ctx, c.engine.EvaluateWindow(w, now))
		c.windows.MarkClosed(w, now)
	}
	c.metrics.SetWindowsOpen(c.windows.OpenCount())
	c.syncCounters()
}

func (c *Coordinator) dispatch(ctx context.Context, matches []rules.Match) {
	for _, match := range matches {
		rule, err := c.engine.Get(match.RuleID)
		if err != nil {
			// Rule removed between evaluation and dispatch.
			continue
		}
		if c.OnMatch != nil {
			c.OnMatch(match)
		}
		c.alerts.HandleMatch(ctx, match, rule, match.MatchedAt)
	}
}

// syncCounters moves engine and alert totals into prometheus as
// deltas, so the collector stays the single metrics owner.
func (c *Coordinator) syncCounters() {
	evals, _ := c.engine.Stats()
	fired := c.alerts.FiredTotal()
	failures := c.alerts.DeliveryFailures()

	c.mu.Lock()
	dEvals := evals - c.lastEvals
	dFired := fired - c.lastFired
	dFail := failures - c.lastFailures
	c.lastEvals, c.lastFired, c.lastFailures = evals, fired, failures
	c.mu.Unlock()

	c.metrics.AddRuleEvaluations(int(dEvals))
	for i := uint64(0); i < dFired; i++ {
		c.metrics.IncAlertsFired()
	}
	for i := uint64(0); i < dFail; i++ {
		c.metrics.IncDeliveryFailures()
	}
}

// GetStats snapshots throughput counters for the health endpoint.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.QueueDepth = c.queue.Depth()
	stats.Backpressure = c.backpressure
	return stats
}

// Running reports whether the pool is live.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
