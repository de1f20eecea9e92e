package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the pipeline's Prometheus instruments. It carries its
// own registry so multiple instances (tests, embedded use) never
// collide on registration. A nil *Collector is a no-op everywhere.
type Collector struct {
	registry *prometheus.Registry

	eventsFolded     prometheus.Counter
	lateDropped      prometheus.Counter
	duplicates       prometheus.Counter
	windowsOpen      prometheus.Gauge
	ruleEvaluations  prometheus.Counter
	alertsFired      prometheus.Counter
	deliveryFailures prometheus.Counter
	queueDepth       prometheus.Gauge
	foldDuration     prometheus.Histogram
}

// NewCollector builds a collector with all instruments registered
// under the given prefix.
func NewCollector(prefix string) *Collector {
	if prefix == "" {
		prefix = "streamflow"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		eventsFolded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "events_folded_total",
			Help: "Events folded into windows.",
		}),
		lateDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "late_dropped_total",
			Help: "Late events dropped after window close.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "duplicate_events_total",
			Help: "Redelivered events deduplicated by id.",
		}),
		windowsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix, Name: "windows_open",
			Help: "Windows currently open.",
		}),
		ruleEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "rule_evaluations_total",
			Help: "Rule condition evaluations.",
		}),
		alertsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "alerts_fired_total",
			Help: "Alert notification rounds sent.",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix, Name: "delivery_failures_total",
			Help: "Notification deliveries that exhausted retries.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: prefix, Name: "queue_depth",
			Help: "Events waiting in the inbound queue.",
		}),
		foldDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: prefix, Name: "fold_duration_seconds",
			Help:    "Time to route one event into its windows.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// Handler serves the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra instruments.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) AddFolded(n int) {
	if c == nil || n == 0 {
		return
	}
	c.eventsFolded.Add(float64(n))
}

func (c *Collector) AddLateDropped(n int) {
	if c == nil || n == 0 {
		return
	}
	c.lateDropped.Add(float64(n))
}

func (c *Collector) AddDuplicates(n int) {
	if c == nil || n == 0 {
		return
	}
	c.duplicates.Add(float64(n))
}

func (c *Collector) SetWindowsOpen(n int) {
	if c == nil {
		return
	}
	c.windowsOpen.Set(float64(n))
}

func (c *Collector) AddRuleEvaluations(n int) {
	if c == nil || n == 0 {
		return
	}
	c.ruleEvaluations.Add(float64(n))
}

func (c *Collector) IncAlertsFired() {
	if c == nil {
		return
	}
	c.alertsFired.Inc()
}

func (c *Collector) IncDeliveryFailures() {
	if c == nil {
		return
	}
	c.deliveryFailures.Inc()
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

func (c *Collector) ObserveFold(d time.Duration) {
	if c == nil {
		return
	}
	c.foldDuration.Observe(d.Seconds())
}
