package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"taskflow/internal/registry"
)

// SharedPool runs submissions in-process, sharing memory with the
// scheduler. Dispatch is cheap — no serialization boundary — so it suits
// I/O-bound tasks (spec.md §4.5). The global cap is enforced by a
// golang.org/x/sync/semaphore.Weighted; fan-out across goroutines is
// tracked by a golang.org/x/sync/errgroup.Group instead of a bare
// sync.WaitGroup, generalized from core.Executor.Execute's single-call
// shape into a pool that runs many calls concurrently.
type SharedPool struct {
	reg *registry.Registry
	sem *semaphore.Weighted

	results chan Outcome

	mu       sync.Mutex
	queue    []Submission
	notEmpty chan struct{}
	closed   bool

	runCtx    context.Context
	runCancel context.CancelFunc
	group     *errgroup.Group
}

// NewSharedPool creates a pool bounded by maxWorkers concurrent
// submissions. reg must already be sealed.
func NewSharedPool(maxWorkers int, reg *registry.Registry) *SharedPool {
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	p := &SharedPool{
		reg:       reg,
		sem:       semaphore.NewWeighted(int64(maxWorkers)),
		results:   make(chan Outcome, maxWorkers),
		notEmpty:  make(chan struct{}, 1),
		runCtx:    groupCtx,
		runCancel: cancel,
		group:     group,
	}
	go p.dispatchLoop()
	return p
}

func (p *SharedPool) Results() <-chan Outcome { return p.results }

func (p *SharedPool) Submit(sub Submission) {
	p.mu.Lock()
	p.queue = append(p.queue, sub)
	p.mu.Unlock()
	select {
	case p.notEmpty <- struct{}{}:
	default:
	}
}

// dispatchLoop pulls submissions off the FIFO queue, acquiring the
// semaphore before handing each to its own goroutine so submissions beyond
// the cap wait in FIFO order rather than all racing to run at once.
func (p *SharedPool) dispatchLoop() {
	for {
		sub, ok := p.pop()
		if !ok {
			select {
			case <-p.notEmpty:
				continue
			case <-p.runCtx.Done():
				return
			}
		}

		if err := p.sem.Acquire(p.runCtx, 1); err != nil {
			return // pool is shutting down
		}

		p.group.Go(func() error {
			defer p.sem.Release(1)
			out := resolveAndInvoke(p.runCtx, p.reg, sub)
			select {
			case p.results <- out:
			case <-p.runCtx.Done():
			}
			return nil
		})
	}
}

func (p *SharedPool) pop() (Submission, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Submission{}, false
	}
	sub := p.queue[0]
	p.queue = p.queue[1:]
	return sub, true
}

// Shutdown waits for in-flight submissions (graceful=true) or cancels the
// pool's context so in-flight function calls observe ctx.Done() and return
// promptly (graceful=false); either way it blocks until all goroutines
// have exited.
func (p *SharedPool) Shutdown(ctx context.Context, graceful bool) error {
	if !graceful {
		p.runCancel()
	}
	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		if graceful {
			p.runCancel()
		}
		return nil
	case <-ctx.Done():
		p.runCancel()
		return ctx.Err()
	}
}
