// Package scheduler implements spec.md §4.6's central loop: a
// single-threaded event loop that is the sole mutator of Graph state,
// driving ready tasks through a bounded pool under global and per-tag
// concurrency caps, retrying with backoff, cascading skips on terminal
// failure, consulting the cache, and emitting a RunSummary. It generalizes
// the teacher's depth-staged dag.Executor.RunParallel into a continuous
// ready-queue loop, since a workflow's readiness frontier here is driven by
// per-tag caps and retries rather than a fixed depth stage.
package scheduler

import (
	"container/heap"
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/cache"
	"taskflow/internal/fingerprint"
	"taskflow/internal/graph"
	"taskflow/internal/pool"
	"taskflow/internal/retry"
	"taskflow/internal/summary"
	"taskflow/internal/value"
)

// Options configures a Scheduler run.
type Options struct {
	Pool           pool.Pool
	Cache          cache.Cache // nil means no caching (NoopCache behavior)
	DefaultPolicy  retry.Policy
	TagLimits      map[string]int
	GlobalLimit    int
	OverallTimeout time.Duration // zero means unbounded
	Rand           *rand.Rand    // nil defaults to a time-seeded source
	Sink           Sink          // nil defaults to NoopSink
}

// Scheduler drives one run of a Graph to completion. It is not safe for
// concurrent use by multiple goroutines — by design it is the single
// owner of all mutable run state (spec.md §5).
type Scheduler struct {
	g    *graph.Graph
	pool pool.Pool
	ch   cache.Cache
	pol  retry.Policy
	rng  *rand.Rand
	sink Sink

	globalLimit    int
	tagLimits      map[string]int
	overallTimeout time.Duration

	state         graph.ExecutionState
	depsRemaining map[string]int
	ready         []string

	attempts          map[string]int
	firstStarted      map[string]time.Time
	currentAttemptStart map[string]time.Time
	wallAccum         map[string]time.Duration

	inFlightTag map[string]int
	inFlight    int
	// inFlightKey records the fingerprint key (if any) computed for a task
	// currently dispatched to the pool, so a successful completion knows
	// whether/where to store its result.
	inFlightKey map[string]string
	inFlightSet map[string]struct{}

	results map[string]value.Value

	pendingRetries retryHeap

	outcomes []summary.Outcome
	runStart time.Time
	runID    string
}

// New builds a Scheduler bound to g. Every task not carrying an explicit
// retry count uses opts.DefaultPolicy as its baseline, overridden per task
// via Policy.WithRetries.
func New(g *graph.Graph, opts Options) *Scheduler {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ch := opts.Cache
	if ch == nil {
		ch = cache.NoopCache{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = NoopSink{}
	}
	globalLimit := opts.GlobalLimit
	if globalLimit <= 0 {
		globalLimit = 1
	}

	s := &Scheduler{
		g:                   g,
		pool:                opts.Pool,
		ch:                  ch,
		pol:                 opts.DefaultPolicy,
		rng:                 rng,
		sink:                sink,
		globalLimit:         globalLimit,
		tagLimits:           opts.TagLimits,
		overallTimeout:      opts.OverallTimeout,
		state:               graph.NewExecutionState(g),
		depsRemaining:       make(map[string]int),
		attempts:            make(map[string]int),
		firstStarted:        make(map[string]time.Time),
		currentAttemptStart: make(map[string]time.Time),
		wallAccum:           make(map[string]time.Duration),
		inFlightTag:         make(map[string]int),
		inFlightKey:         make(map[string]string),
		inFlightSet:         make(map[string]struct{}),
		results:             make(map[string]value.Value),
	}
	for _, id := range g.TaskIDs() {
		s.depsRemaining[id] = len(g.Dependencies(id))
	}
	return s
}

// Run drives the graph to completion and returns the resulting summary.
// The only errors returned are scheduler-internal invariant violations
// (spec.md §7's Internal kind) — every task-level failure is represented
// inside the summary, never as a returned error.
func (s *Scheduler) Run(ctx context.Context) (*summary.RunSummary, error) {
	s.runStart = time.Now()
	s.runID = uuid.NewString()
	s.sink.Emit(Event{Event: "run.start"})

	runCtx := ctx
	var cancel context.CancelFunc
	if s.overallTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.overallTimeout)
		defer cancel()
	}

	var initial []string
	for id, remaining := range s.depsRemaining {
		if remaining == 0 {
			initial = append(initial, id)
		}
	}
	sort.Strings(initial)
	for _, id := range initial {
		if err := graph.Transition(s.state, id, graph.StatePending, graph.StateReady); err != nil {
			return nil, err
		}
	}
	s.ready = append(s.ready, initial...)

	for {
		s.promoteDueRetries()
		if err := s.dispatch(runCtx); err != nil {
			return nil, err
		}

		if len(s.ready) == 0 && s.inFlight == 0 && len(s.pendingRetries) == 0 {
			break
		}

		select {
		case <-runCtx.Done():
			s.drain()
			s.sink.Emit(Event{Event: "run.end"})
			return s.finish(), nil
		case out := <-s.pool.Results():
			s.handlePoolOutcome(out)
		case <-s.retryTimer():
			// loop back around; promoteDueRetries will pick it up
		}
	}

	s.sink.Emit(Event{Event: "run.end"})
	return s.finish(), nil
}

// retryTimer returns a channel that fires when the earliest pending retry
// is due, or a nil channel (blocks forever) if there is none — the loop
// never busy-waits (spec.md §5).
func (s *Scheduler) retryTimer() <-chan time.Time {
	if len(s.pendingRetries) == 0 {
		return nil
	}
	d := time.Until(s.pendingRetries[0].wakeAt)
	if d < 0 {
		d = 0
	}
	return time.After(d)
}

func (s *Scheduler) promoteDueRetries() {
	now := time.Now()
	for len(s.pendingRetries) > 0 && !s.pendingRetries[0].wakeAt.After(now) {
		item := heap.Pop(&s.pendingRetries).(retryItem)
		if err := graph.Transition(s.state, item.taskID, graph.StateRunning, graph.StateReady); err != nil {
			continue
		}
		s.ready = append(s.ready, item.taskID)
	}
}

// dispatch admits as many ready tasks as the global and tag caps allow,
// consulting the cache and otherwise submitting to the pool. A cache hit
// completes synchronously and may make dependents ready, so admission
// repeats until a pass admits nothing.
func (s *Scheduler) dispatch(ctx context.Context) error {
	for {
		nodes := make(map[string]*graph.Node, len(s.ready))
		for _, id := range s.ready {
			n, _ := s.g.Node(id)
			nodes[id] = n
		}

		admit, blocked := DispatchOrder(nodes, s.ready, s.globalLimit, s.inFlight, s.tagLimits, s.inFlightTag)
		s.ready = blocked
		if len(admit) == 0 {
			return nil
		}

		for _, id := range admit {
			if err := s.admitTask(ctx, id); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) admitTask(ctx context.Context, id string) error {
	node, _ := s.g.Node(id)
	task := node.Task

	if err := graph.Transition(s.state, id, graph.StateReady, graph.StateRunning); err != nil {
		return err
	}
	s.inFlight++
	for _, tag := range task.Tags {
		s.inFlightTag[tag]++
	}
	s.inFlightSet[id] = struct{}{}
	if _, ok := s.firstStarted[id]; !ok {
		s.firstStarted[id] = time.Now()
	}

	resolvedArgs, err := resolveArgs(task.Args, s.results)
	if err != nil {
		s.attempts[id]++
		s.collectCompletion(id, pool.Outcome{
			TaskID:  id,
			Failure: &pool.Failure{Kind: pool.FailureThrown, Message: err.Error()},
		})
		return nil
	}

	var key string
	haveKey := false
	if task.Cacheable {
		k, fperr := fingerprint.Fingerprint(task.FuncRef, resolvedArgs)
		if fperr != nil {
			s.sink.Emit(Event{Event: "task.dispatch", TaskID: id, Status: "cache-bypass"})
		} else {
			key = k
			haveKey = true
			if v, ok, lerr := s.ch.Lookup(key); lerr == nil && ok {
				s.sink.Emit(Event{Event: "cache.hit", TaskID: id})
				s.collectCompletion(id, pool.Outcome{TaskID: id, Value: v})
				return nil
			}
		}
	}

	s.attempts[id]++
	s.currentAttemptStart[id] = time.Now()
	if haveKey {
		s.inFlightKey[id] = key
	}
	s.sink.Emit(Event{Event: "task.dispatch", TaskID: id, Attempt: s.attempts[id], Tags: task.Tags})
	s.sink.Emit(Event{Event: "task.start", TaskID: id, Attempt: s.attempts[id], Tags: task.Tags})

	timeout := time.Duration(task.TimeoutSec * float64(time.Second))
	s.pool.Submit(pool.Submission{TaskID: id, FuncRef: task.FuncRef, Args: resolvedArgs, Timeout: timeout})
	return nil
}

func (s *Scheduler) handlePoolOutcome(out pool.Outcome) {
	s.collectCompletion(out.TaskID, out)
}

// collectCompletion is spec.md §4.6 step 4: decrement counters, classify,
// and either mark success, schedule a retry, or cascade a terminal
// failure. Cache hits (attempts not incremented), synthesized
// ref-resolution failures, and real pool completions all funnel through
// here.
func (s *Scheduler) collectCompletion(id string, out pool.Outcome) {
	node, _ := s.g.Node(id)
	task := node.Task

	s.inFlight--
	for _, tag := range task.Tags {
		s.inFlightTag[tag]--
	}
	delete(s.inFlightSet, id)

	if start, ok := s.currentAttemptStart[id]; ok {
		s.wallAccum[id] += time.Since(start)
		delete(s.currentAttemptStart, id)
	}

	if out.Failure == nil {
		s.finishSuccess(id, out.Value)
		return
	}

	if out.Failure.Kind == pool.FailureCancelled {
		s.finishTerminalFailure(id, "cancelled", out.Failure.Message)
		return
	}

	kind := "thrown"
	if out.Failure.Kind == pool.FailureTimeout {
		kind = "timeout"
	}

	policy := s.pol.WithRetries(task.Retries)
	if policy.HasAttemptsRemaining(s.attempts[id]) {
		delay := policy.Delay(s.attempts[id]+1, s.rng)
		heap.Push(&s.pendingRetries, retryItem{taskID: id, wakeAt: time.Now().Add(delay)})
		s.sink.Emit(Event{Event: "task.retry", TaskID: id, Attempt: s.attempts[id], DurationMs: delay.Milliseconds(), Tags: task.Tags})
		return
	}

	s.finishTerminalFailure(id, kind, out.Failure.Message)
}

func (s *Scheduler) finishSuccess(id string, v value.Value) {
	node, _ := s.g.Node(id)
	task := node.Task

	if err := graph.Transition(s.state, id, graph.StateRunning, graph.StateSucceeded); err != nil {
		return
	}
	s.results[id] = v

	cached := s.attempts[id] == 0
	if !cached {
		if key, ok := s.inFlightKey[id]; ok && task.Cacheable {
			if err := s.ch.Store(key, v); err == nil {
				s.sink.Emit(Event{Event: "cache.store", TaskID: id})
			}
			delete(s.inFlightKey, id)
		}
	}

	vv := v
	s.outcomes = append(s.outcomes, summary.Outcome{
		TaskID:    id,
		Status:    string(graph.StateSucceeded),
		Attempts:  s.attempts[id],
		StartedAt: s.firstStarted[id].Sub(s.runStart),
		EndedAt:   time.Since(s.runStart),
		WallTime:  s.wallAccum[id],
		Cached:    cached,
		Result:    &vv,
	})
	s.sink.Emit(Event{Event: "task.end", TaskID: id, Status: "succeeded", Tags: task.Tags, Cached: cached})

	s.promoteDependents(id)
}

func (s *Scheduler) finishTerminalFailure(id, errorKind, errorMessage string) {
	node, _ := s.g.Node(id)
	task := node.Task

	skipCause, err := graph.FailAndPropagate(s.g, s.state, id)
	if err != nil {
		s.outcomes = append(s.outcomes, summary.Outcome{
			TaskID: id, Status: string(graph.StateFailed),
			Attempts: s.attempts[id], ErrorKind: "internal", ErrorMessage: err.Error(),
		})
		return
	}

	s.outcomes = append(s.outcomes, summary.Outcome{
		TaskID:       id,
		Status:       string(graph.StateFailed),
		Attempts:     s.attempts[id],
		StartedAt:    s.firstStarted[id].Sub(s.runStart),
		EndedAt:      time.Since(s.runStart),
		WallTime:     s.wallAccum[id],
		ErrorKind:    errorKind,
		ErrorMessage: errorMessage,
	})
	s.sink.Emit(Event{Event: "task.end", TaskID: id, Status: "failed", ErrorKind: errorKind, Tags: task.Tags})

	skippedIDs := make(map[string]struct{}, len(skipCause))
	names := make([]string, 0, len(skipCause))
	for name := range skipCause {
		names = append(names, name)
		skippedIDs[name] = struct{}{}
	}
	sort.Strings(names)
	for _, name := range names {
		s.outcomes = append(s.outcomes, summary.Outcome{
			TaskID:    name,
			Status:    string(graph.StateSkipped),
			SkipCause: skipCause[name],
		})
		s.sink.Emit(Event{Event: "task.skip", TaskID: name})
	}
	s.removeFromReady(skippedIDs)
}

// promoteDependents decrements each dependent's remaining-dep count and
// transitions any that reach zero to ready, appending them to the tail of
// the ready queue sorted ascending by id — this is spec.md §4.6's tie-break
// for "tasks made ready in the same graph transition".
func (s *Scheduler) promoteDependents(id string) {
	var newlyReady []string
	for _, dep := range s.g.Dependents(id) {
		if s.state[dep] != graph.StatePending {
			continue
		}
		s.depsRemaining[dep]--
		if s.depsRemaining[dep] == 0 {
			newlyReady = append(newlyReady, dep)
		}
	}
	sort.Strings(newlyReady)
	for _, dep := range newlyReady {
		if err := graph.Transition(s.state, dep, graph.StatePending, graph.StateReady); err != nil {
			continue
		}
	}
	s.ready = append(s.ready, newlyReady...)
}

func (s *Scheduler) removeFromReady(skip map[string]struct{}) {
	if len(skip) == 0 {
		return
	}
	out := s.ready[:0:0]
	for _, id := range s.ready {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	s.ready = out
}

// drain implements spec.md §5's cancellation path: ready and pending-retry
// tasks become failed/cancelled immediately, in-flight work is asked to
// cancel, and the loop exits once every handle has resolved.
func (s *Scheduler) drain() {
	now := time.Now()

	for _, id := range s.ready {
		if err := graph.Transition(s.state, id, graph.StateReady, graph.StateFailed); err != nil {
			continue
		}
		s.outcomes = append(s.outcomes, summary.Outcome{
			TaskID: id, Status: string(graph.StateFailed),
			EndedAt: now.Sub(s.runStart), ErrorKind: "cancelled", ErrorMessage: "run cancelled while ready",
		})
	}
	s.ready = nil

	for len(s.pendingRetries) > 0 {
		item := heap.Pop(&s.pendingRetries).(retryItem)
		if err := graph.Transition(s.state, item.taskID, graph.StateRunning, graph.StateFailed); err != nil {
			continue
		}
		s.outcomes = append(s.outcomes, summary.Outcome{
			TaskID: item.taskID, Status: string(graph.StateFailed), Attempts: s.attempts[item.taskID],
			EndedAt: now.Sub(s.runStart), ErrorKind: "cancelled", ErrorMessage: "run cancelled while awaiting retry",
		})
	}

	// Absorb any completions already sitting in the channel before forcing
	// shutdown, so a task that genuinely finished just before the deadline
	// is recorded on its real outcome rather than overwritten as cancelled.
	for {
		select {
		case out := <-s.pool.Results():
			s.handlePoolOutcome(out)
		default:
			goto drained
		}
	}
drained:

	_ = s.pool.Shutdown(context.Background(), false)

	for id := range s.inFlightSet {
		node, _ := s.g.Node(id)
		if err := graph.Transition(s.state, id, graph.StateRunning, graph.StateFailed); err != nil {
			continue
		}
		s.outcomes = append(s.outcomes, summary.Outcome{
			TaskID: id, Status: string(graph.StateFailed), Attempts: s.attempts[id],
			StartedAt: s.firstStarted[id].Sub(s.runStart), EndedAt: now.Sub(s.runStart),
			ErrorKind: "cancelled", ErrorMessage: "run cancelled while in flight",
		})
		_ = node
	}
	s.inFlightSet = map[string]struct{}{}
	s.inFlight = 0
	s.inFlightTag = map[string]int{}
}

func (s *Scheduler) finish() *summary.RunSummary {
	return &summary.RunSummary{
		WorkflowName: s.g.Name,
		RunID:        s.runID,
		GraphHash:    string(s.g.Hash()),
		StartedAt:    s.runStart,
		EndedAt:      time.Now(),
		Outcomes:     s.outcomes,
	}
}
