// Package cli provides the deterministic command-line boundary for the
// taskflow binary: argument parsing, exit-code mapping, and execution
// wiring. Structure follows the teacher's internal/cli/input.go — a
// flag.FlagSet(ContinueOnError) with output discarded and parse errors
// returned as a typed InvocationError rather than printed and exited
// inline.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taskflow/internal/graph"
	"taskflow/internal/workflow"
)

const (
	ExitSuccess           = 0
	ExitTaskFailure       = 1
	ExitInvalidInvocation = 2
	ExitInternalError     = 3
)

// Invocation is the canonicalized description of a single `taskflow run`.
// MaxWorkers/Executor/TagLimits/CacheDir/SummaryJSONPath/TimeoutSeconds carry
// only what was explicitly passed on the command line (zero value means
// "unset") so config.EngineConfig.Merge can tell a flag override from a
// flag default; Execute applies the final fallbacks after merging.
type Invocation struct {
	WorkflowPath    string
	ConfigPath      string
	MaxWorkers      int
	Executor        string // "thread" or "process"
	TagLimits       map[string]int
	CacheDir        string
	SummaryJSONPath string
	TimeoutSeconds  float64
	MetricsAddr     string
	Plan            bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses `run <workflow.json> [flags]` into an Invocation.
// The subcommand and workflow path are positional and must come first;
// everything after them is parsed by a flag.FlagSet.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidf("missing subcommand (expected %q)", "run")
	}
	if args[0] != "run" {
		return Invocation{}, invalidf("unknown subcommand %q (expected %q)", args[0], "run")
	}
	if len(args) < 2 {
		return Invocation{}, invalidf("run requires a workflow path")
	}
	workflowPath := args[1]

	fs := flag.NewFlagSet("taskflow run", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	configPath := fs.String("config", "", "optional YAML engine config; CLI flags override its values")
	maxWorkers := fs.Int("max-workers", 0, "maximum number of concurrently dispatched tasks (0 = number of hardware threads)")
	executor := fs.String("executor", "", "task executor: thread|process (default thread)")
	tagLimits := fs.String("tag-limits", "", "comma-separated tag=limit pairs, e.g. io=2,cpu=4")
	cacheDir := fs.String("cache-dir", "", "directory for the content-addressed result cache (disabled if empty)")
	summaryJSON := fs.String("summary-json", "", "path to write the run summary as JSON (stdout if empty)")
	timeout := fs.Float64("timeout", 0, "overall run timeout in seconds (0 means unbounded)")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	plan := fs.Bool("plan", false, "print the dispatch order and cache preview without running any task")

	if err := fs.Parse(args[2:]); err != nil {
		return Invocation{}, invalidf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if *executor != "" && *executor != "thread" && *executor != "process" {
		return Invocation{}, invalidf("--executor must be %q or %q, got %q", "thread", "process", *executor)
	}
	if *maxWorkers < 0 {
		return Invocation{}, invalidf("--max-workers must not be negative, got %d", *maxWorkers)
	}
	if *timeout < 0 {
		return Invocation{}, invalidf("--timeout must not be negative, got %v", *timeout)
	}

	limits, err := parseTagLimits(*tagLimits)
	if err != nil {
		return Invocation{}, err
	}

	return Invocation{
		WorkflowPath:    workflowPath,
		ConfigPath:      *configPath,
		MaxWorkers:      *maxWorkers,
		Executor:        *executor,
		TagLimits:       limits,
		CacheDir:        *cacheDir,
		SummaryJSONPath: *summaryJSON,
		TimeoutSeconds:  *timeout,
		MetricsAddr:     *metricsAddr,
		Plan:            *plan,
	}, nil
}

func parseTagLimits(raw string) (map[string]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, invalidf("invalid --tag-limits entry %q (expected tag=limit)", pair)
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil || n <= 0 {
			return nil, invalidf("invalid --tag-limits value for %q: %q", kv[0], kv[1])
		}
		out[kv[0]] = n
	}
	return out, nil
}

// ExitCode extracts a semantic exit code from a ParseInvocation/Execute
// error, defaulting to ExitInternalError for anything unrecognized.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	var schemaErr *workflow.SchemaError
	if errors.As(err, &schemaErr) {
		return ExitInvalidInvocation
	}
	var cycleErr *graph.CycleError
	if errors.As(err, &cycleErr) {
		return ExitInvalidInvocation
	}
	var workflowErr *graph.WorkflowError
	if errors.As(err, &workflowErr) {
		return ExitInvalidInvocation
	}
	return ExitInternalError
}
