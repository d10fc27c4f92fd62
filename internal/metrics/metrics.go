// Package metrics exposes prometheus/client_golang gauges and counters
// over the scheduler's event stream, the domain-stack observability layer
// SPEC_FULL.md §6.3 adds around the scheduling core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"taskflow/internal/scheduler"
)

// Collector registers and updates the run's metrics. It is itself a
// scheduler.Sink, so wiring it into a run is a one-line Options.Sink
// assignment (composed with logging.SlogSink via MultiSink below).
type Collector struct {
	tasksInFlight *prometheus.GaugeVec
	tasksTotal    *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	cacheHits     prometheus.Counter
}

// NewCollector creates and registers a Collector's metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskflow_tasks_in_flight",
			Help: "Number of tasks currently dispatched to the pool, by tag.",
		}, []string{"tag"}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_tasks_total",
			Help: "Total terminal task outcomes, by status.",
		}, []string{"status"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_retries_total",
			Help: "Total retry attempts scheduled.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_cache_hits_total",
			Help: "Total tasks resolved from the result cache instead of running.",
		}),
	}
	reg.MustRegister(c.tasksInFlight, c.tasksTotal, c.retriesTotal, c.cacheHits)
	return c
}

// Emit updates metrics from a single scheduler.Event. Only a subset of
// event kinds carry metric-relevant information; the rest are no-ops here.
func (c *Collector) Emit(e scheduler.Event) {
	switch e.Event {
	case "task.dispatch":
		for _, tag := range tagsOrUntagged(e.Tags) {
			c.tasksInFlight.WithLabelValues(tag).Inc()
		}
	case "task.end":
		// A cached completion never emitted a matching task.dispatch (a
		// cache hit resolves without ever reaching the pool), so it must
		// not drive the in-flight gauge negative.
		if !e.Cached {
			for _, tag := range tagsOrUntagged(e.Tags) {
				c.tasksInFlight.WithLabelValues(tag).Dec()
			}
		}
		c.tasksTotal.WithLabelValues(e.Status).Inc()
	case "task.skip":
		c.tasksTotal.WithLabelValues("skipped").Inc()
	case "task.retry":
		// A retry releases its dispatch slot until it redispatches, which
		// emits a fresh task.dispatch.
		for _, tag := range tagsOrUntagged(e.Tags) {
			c.tasksInFlight.WithLabelValues(tag).Dec()
		}
		c.retriesTotal.Inc()
	case "cache.hit":
		c.cacheHits.Inc()
	}
}

func tagsOrUntagged(tags []string) []string {
	if len(tags) == 0 {
		return []string{"untagged"}
	}
	return tags
}

// MultiSink fans one Event out to several sinks, letting a run combine
// structured logging and metrics without the scheduler knowing about either.
type MultiSink []scheduler.Sink

func (m MultiSink) Emit(e scheduler.Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
