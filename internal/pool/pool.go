// Package pool implements spec.md §4.5's abstract executor pool: a bounded
// worker pool with two concrete shapes, shared (in-process) and isolated
// (subprocess), both exposing submissions through a single completion
// channel so the scheduler stays a single-threaded event loop.
package pool

import (
	"context"
	"time"

	"taskflow/internal/registry"
	"taskflow/internal/value"
)

// FailureKind classifies why a submission did not produce a value.
type FailureKind string

const (
	FailureThrown    FailureKind = "thrown"
	FailureTimeout   FailureKind = "timeout"
	FailureCancelled FailureKind = "cancelled"
)

// Failure is the completion handle's failure descriptor (spec.md §4.5).
type Failure struct {
	Kind      FailureKind
	Message   string
	Traceback string
}

func (f *Failure) Error() string { return f.Message }

// Submission is one unit of work handed to a Pool.
type Submission struct {
	TaskID  string
	FuncRef string
	Args    []value.Value
	Timeout time.Duration // zero means unbounded
}

// Outcome is a completion handle's resolved value, delivered on a Pool's
// Results channel. Exactly one of Value/Failure is meaningful, discriminated
// by Failure == nil.
type Outcome struct {
	TaskID  string
	Value   value.Value
	Failure *Failure
}

// Pool is the contract both SharedPool and IsolatedPool satisfy.
type Pool interface {
	// Submit enqueues work. Submissions beyond the pool's global cap queue
	// in FIFO order rather than blocking the caller indefinitely; Submit
	// itself never blocks the scheduler's event loop.
	Submit(sub Submission)

	// Results is the single channel every completion (success or failure)
	// is delivered on, matching spec.md §5's "communication... by
	// completion handles/events only".
	Results() <-chan Outcome

	// Shutdown waits for in-flight work to finish (graceful) or requests
	// best-effort cancellation of in-flight work and waits for it to
	// resolve (graceful=false).
	Shutdown(ctx context.Context, graceful bool) error
}

// resolveAndInvoke is shared by SharedPool's in-process dispatch and the
// isolated worker's RunWorkerJSON: it
// resolves funcRef against reg, applies sub.Timeout as a context deadline,
// and classifies the result into an Outcome.
func resolveAndInvoke(ctx context.Context, reg *registry.Registry, sub Submission) Outcome {
	fn, err := reg.Resolve(sub.FuncRef)
	if err != nil {
		return Outcome{TaskID: sub.TaskID, Failure: &Failure{Kind: FailureThrown, Message: err.Error()}}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if sub.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, sub.Timeout)
		defer cancel()
	}

	v, err := fn(callCtx, sub.Args)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Outcome{TaskID: sub.TaskID, Failure: &Failure{Kind: FailureTimeout, Message: err.Error()}}
		}
		if ctx.Err() == context.Canceled {
			return Outcome{TaskID: sub.TaskID, Failure: &Failure{Kind: FailureCancelled, Message: err.Error()}}
		}
		return Outcome{TaskID: sub.TaskID, Failure: &Failure{Kind: FailureThrown, Message: err.Error()}}
	}
	return Outcome{TaskID: sub.TaskID, Value: v}
}
