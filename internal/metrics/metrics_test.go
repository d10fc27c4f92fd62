package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"taskflow/internal/scheduler"
)

func TestCollectorCountsTerminalOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Emit(scheduler.Event{Event: "task.dispatch", TaskID: "a", Tags: []string{"io"}})
	c.Emit(scheduler.Event{Event: "task.end", TaskID: "a", Status: "succeeded", Tags: []string{"io"}})
	c.Emit(scheduler.Event{Event: "task.retry", TaskID: "b"})
	c.Emit(scheduler.Event{Event: "cache.hit", TaskID: "c"})

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var sawSucceeded, sawRetry, sawCacheHit bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "taskflow_tasks_total":
			for _, m := range mf.GetMetric() {
				if metricLabel(m, "status") == "succeeded" && m.GetCounter().GetValue() == 1 {
					sawSucceeded = true
				}
			}
		case "taskflow_retries_total":
			if mf.GetMetric()[0].GetCounter().GetValue() == 1 {
				sawRetry = true
			}
		case "taskflow_cache_hits_total":
			if mf.GetMetric()[0].GetCounter().GetValue() == 1 {
				sawCacheHit = true
			}
		}
	}
	if !sawSucceeded || !sawRetry || !sawCacheHit {
		t.Fatalf("missing expected metric values: succeeded=%v retry=%v cacheHit=%v", sawSucceeded, sawRetry, sawCacheHit)
	}
}

func TestCollectorCachedCompletionDoesNotGoNegative(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// A cache hit resolves without ever emitting task.dispatch.
	c.Emit(scheduler.Event{Event: "task.end", TaskID: "a", Status: "succeeded", Tags: []string{"io"}, Cached: true})

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range metricFamilies {
		if mf.GetName() != "taskflow_tasks_in_flight" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if v := m.GetGauge().GetValue(); v < 0 {
				t.Fatalf("taskflow_tasks_in_flight went negative: %v (tag=%s)", v, metricLabel(m, "tag"))
			}
		}
	}
}

func metricLabel(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
