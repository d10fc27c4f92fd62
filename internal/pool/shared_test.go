package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"taskflow/internal/registry"
	"taskflow/internal/value"
)

func TestSharedPoolRunsSubmissions(t *testing.T) {
	reg := registry.New()
	reg.Register("double", func(_ context.Context, args []value.Value) (value.Value, error) {
		i, _ := args[0].Int()
		return value.Int(i * 2), nil
	})
	reg.Seal()

	p := NewSharedPool(2, reg)
	defer p.Shutdown(context.Background(), true)

	p.Submit(Submission{TaskID: "t1", FuncRef: "double", Args: []value.Value{value.Int(3)}})

	select {
	case out := <-p.Results():
		if out.Failure != nil {
			t.Fatalf("unexpected failure: %v", out.Failure)
		}
		got, _ := out.Value.Int()
		if got != 6 {
			t.Fatalf("got %d, want 6", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSharedPoolRespectsGlobalCap(t *testing.T) {
	reg := registry.New()
	var inFlight, maxSeen int32
	reg.Register("track", func(ctx context.Context, _ []value.Value) (value.Value, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return value.Null(), nil
	})
	reg.Seal()

	p := NewSharedPool(2, reg)
	defer p.Shutdown(context.Background(), true)

	for i := 0; i < 6; i++ {
		p.Submit(Submission{TaskID: "t", FuncRef: "track"})
	}
	for i := 0; i < 6; i++ {
		select {
		case <-p.Results():
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	if atomic.LoadInt32(&maxSeen) > 2 {
		t.Fatalf("max concurrent = %d, want <= 2", maxSeen)
	}
}

func TestResolveAndInvokeClassifiesUnknownFunction(t *testing.T) {
	reg := registry.New()
	reg.Seal()
	out := resolveAndInvoke(context.Background(), reg, Submission{TaskID: "t", FuncRef: "missing"})
	if out.Failure == nil || out.Failure.Kind != FailureThrown {
		t.Fatalf("expected a thrown failure, got %+v", out)
	}
}
