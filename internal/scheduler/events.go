package scheduler

// Event is one diagnostic record the scheduler emits as it drives a run.
// Shape and event names follow spec.md §6's log stream contract; a concrete
// sink (internal/logging) renders these as JSON lines.
type Event struct {
	Event        string
	TaskID       string
	Attempt      int
	DurationMs   int64
	Status       string
	ErrorKind    string
	ErrorMessage string
	Tags         []string
	// Cached marks a task.end for a task that was never dispatched to the
	// pool (a cache hit never emitted a matching task.dispatch), so a sink
	// tracking in-flight counts from dispatch/end pairs must not treat this
	// as a completion of dispatched work.
	Cached bool
}

// Sink consumes Events as the scheduler produces them. Emit is called
// synchronously from the scheduler loop, so a slow sink slows the loop;
// sinks that need async delivery should buffer internally.
type Sink interface {
	Emit(Event)
}

// NoopSink discards every event. Used when the caller supplies no logging
// wiring.
type NoopSink struct{}

func (NoopSink) Emit(Event) {}
