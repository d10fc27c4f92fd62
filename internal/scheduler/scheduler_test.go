package scheduler

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"taskflow/internal/cache"
	"taskflow/internal/graph"
	"taskflow/internal/pool"
	"taskflow/internal/registry"
	"taskflow/internal/retry"
	"taskflow/internal/value"
)

func chainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New("chain", []graph.Task{
		{ID: "a", FuncRef: "add1", Args: []value.Value{value.Int(1)}, Cacheable: true},
		{ID: "b", FuncRef: "add1", Args: []value.Value{value.Ref("a")}, Deps: []string{"a"}, Cacheable: true},
		{ID: "c", FuncRef: "add1", Args: []value.Value{value.Ref("b")}, Deps: []string{"b"}, Cacheable: true},
	})
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return g
}

func add1Registry() *registry.Registry {
	reg := registry.New()
	reg.Register("add1", func(_ context.Context, args []value.Value) (value.Value, error) {
		i, _ := args[0].Int()
		return value.Int(i + 1), nil
	})
	reg.Seal()
	return reg
}

func TestLinearChainSucceedsAndCaches(t *testing.T) {
	reg := add1Registry()
	p := pool.NewSharedPool(4, reg)
	defer p.Shutdown(context.Background(), true)

	mc := cache.NewMemoryCache()
	s := New(chainGraph(t), Options{
		Pool: p, Cache: mc, GlobalLimit: 4, DefaultPolicy: retry.Default(), Rand: rand.New(rand.NewSource(1)),
	})

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sum.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(sum.Outcomes))
	}
	tally := sum.TallyByStatus()
	if tally["succeeded"] != 3 {
		t.Fatalf("expected 3 succeeded, got %+v", tally)
	}
	for _, o := range sum.Outcomes {
		if o.Attempts != 1 {
			t.Fatalf("task %s: expected attempts=1, got %d", o.TaskID, o.Attempts)
		}
		if o.Cached {
			t.Fatalf("task %s: unexpected cache hit on first run", o.TaskID)
		}
	}

	// Second run against the same cache: everything should hit cache.
	p2 := pool.NewSharedPool(4, reg)
	defer p2.Shutdown(context.Background(), true)
	s2 := New(chainGraph(t), Options{Pool: p2, Cache: mc, GlobalLimit: 4, DefaultPolicy: retry.Default()})
	sum2, err := s2.Run(context.Background())
	if err != nil {
		t.Fatalf("Run (2nd): %v", err)
	}
	for _, o := range sum2.Outcomes {
		if !o.Cached {
			t.Fatalf("task %s: expected cache hit on second run", o.TaskID)
		}
		if o.Attempts != 0 {
			t.Fatalf("task %s: expected attempts=0 on cache hit, got %d", o.TaskID, o.Attempts)
		}
	}
}

func TestTagLimitNeverExceeded(t *testing.T) {
	reg := registry.New()
	var inFlight, maxSeen int32
	reg.Register("work", func(_ context.Context, _ []value.Value) (value.Value, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return value.Null(), nil
	})
	reg.Seal()

	var tasks []graph.Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, graph.Task{ID: string(rune('a' + i)), FuncRef: "work", Tags: []string{"io"}, Cacheable: false})
	}
	g, err := graph.New("fanout", tasks)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	p := pool.NewSharedPool(8, reg)
	defer p.Shutdown(context.Background(), true)

	s := New(g, Options{
		Pool: p, GlobalLimit: 8, TagLimits: map[string]int{"io": 2}, DefaultPolicy: retry.Default(),
	})
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.TallyByStatus()["succeeded"] != 10 {
		t.Fatalf("expected 10 succeeded, got %+v", sum.TallyByStatus())
	}
	if atomic.LoadInt32(&maxSeen) > 2 {
		t.Fatalf("tag cap violated: max concurrent = %d", maxSeen)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	reg := registry.New()
	var calls int32
	reg.Register("flaky", func(_ context.Context, _ []value.Value) (value.Value, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return value.Value{}, errTransient
		}
		return value.Int(42), nil
	})
	reg.Seal()

	g, err := graph.New("retry", []graph.Task{
		{ID: "a", FuncRef: "flaky", Retries: 2, Cacheable: false},
	})
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	p := pool.NewSharedPool(2, reg)
	defer p.Shutdown(context.Background(), true)

	s := New(g, Options{
		Pool: p, GlobalLimit: 2,
		DefaultPolicy: retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2, Ceiling: time.Second},
		Rand:          rand.New(rand.NewSource(7)),
	})
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sum.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(sum.Outcomes))
	}
	o := sum.Outcomes[0]
	if o.Status != "succeeded" || o.Attempts != 3 {
		t.Fatalf("expected succeeded after 3 attempts, got status=%s attempts=%d", o.Status, o.Attempts)
	}
}

func TestTerminalFailureSkipsDescendants(t *testing.T) {
	reg := registry.New()
	reg.Register("always_fail", func(_ context.Context, _ []value.Value) (value.Value, error) {
		return value.Value{}, errTransient
	})
	reg.Register("noop", func(_ context.Context, _ []value.Value) (value.Value, error) {
		return value.Null(), nil
	})
	reg.Seal()

	g, err := graph.New("fail-skip", []graph.Task{
		{ID: "a", FuncRef: "always_fail", Cacheable: false},
		{ID: "b", FuncRef: "noop", Deps: []string{"a"}, Cacheable: false},
		{ID: "c", FuncRef: "noop", Deps: []string{"a"}, Cacheable: false},
	})
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	p := pool.NewSharedPool(2, reg)
	defer p.Shutdown(context.Background(), true)

	s := New(g, Options{Pool: p, GlobalLimit: 2, DefaultPolicy: retry.Policy{MaxAttempts: 1}})
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	byID := map[string]string{}
	cause := map[string]string{}
	for _, o := range sum.Outcomes {
		byID[o.TaskID] = o.Status
		cause[o.TaskID] = o.SkipCause
	}
	if byID["a"] != "failed" {
		t.Fatalf("expected a=failed, got %s", byID["a"])
	}
	if byID["b"] != "skipped" || cause["b"] != "a" {
		t.Fatalf("expected b=skipped cause=a, got status=%s cause=%s", byID["b"], cause["b"])
	}
	if byID["c"] != "skipped" || cause["c"] != "a" {
		t.Fatalf("expected c=skipped cause=a, got status=%s cause=%s", byID["c"], cause["c"])
	}
}

func TestOverallTimeoutCancelsInFlight(t *testing.T) {
	reg := registry.New()
	reg.Register("slow", func(ctx context.Context, _ []value.Value) (value.Value, error) {
		select {
		case <-time.After(2 * time.Second):
			return value.Null(), nil
		case <-ctx.Done():
			return value.Value{}, ctx.Err()
		}
	})
	reg.Seal()

	g, err := graph.New("timeout", []graph.Task{
		{ID: "a", FuncRef: "slow", TimeoutSec: 10, Cacheable: false},
	})
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	p := pool.NewSharedPool(2, reg)
	defer p.Shutdown(context.Background(), true)

	s := New(g, Options{Pool: p, GlobalLimit: 2, DefaultPolicy: retry.Policy{MaxAttempts: 1}, OverallTimeout: 50 * time.Millisecond})
	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sum.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(sum.Outcomes))
	}
	o := sum.Outcomes[0]
	if o.Status != "failed" || o.ErrorKind != "cancelled" {
		t.Fatalf("expected failed/cancelled, got status=%s kind=%s", o.Status, o.ErrorKind)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

var errTransient = errString("transient failure")
