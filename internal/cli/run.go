package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/metrics"
	"taskflow/internal/pool"
	"taskflow/internal/registry"
	"taskflow/internal/retry"
	"taskflow/internal/scheduler"
	"taskflow/internal/summary"
	"taskflow/internal/workflow"
)

// Result is what Execute returns: the semantic exit code plus the run
// summary, when a run actually started.
type Result struct {
	ExitCode int
	Summary  *summary.RunSummary
}

// Run is the high-level entrypoint suitable for black-box tests: it parses
// args, resolves config-file/flag precedence, and executes the run.
func Run(ctx context.Context, args []string) (Result, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}
	return Execute(ctx, inv, os.Stderr)
}

// Execute loads the workflow named by inv, wires a Scheduler per spec.md
// §4–§6, runs it to completion, and writes the resulting summary. logW
// receives the structured JSON log stream (spec.md §6). The summary is
// written to the --summary-json file when one is set and to stdout
// otherwise; plan mode prints its report to stdout.
func Execute(ctx context.Context, inv Invocation, logW *os.File) (Result, error) {
	fileCfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	cfg := fileCfg.Merge(config.EngineConfig{
		MaxWorkers:     inv.MaxWorkers,
		Executor:       inv.Executor,
		TagLimits:      inv.TagLimits,
		CacheDir:       inv.CacheDir,
		SummaryJSON:    inv.SummaryJSONPath,
		TimeoutSeconds: inv.TimeoutSeconds,
	})
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.Executor == "" {
		cfg.Executor = "thread"
	}

	g, err := workflow.LoadFile(inv.WorkflowPath)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	if inv.Plan {
		var planCache cache.Cache = cache.NoopCache{}
		if cfg.CacheDir != "" {
			planCache = cache.NewFileCache(cfg.CacheDir)
		}
		steps, err := Plan(g, planCache)
		if err != nil {
			return Result{ExitCode: ExitInternalError}, err
		}
		if _, err := os.Stdout.WriteString(FormatPlan(steps)); err != nil {
			return Result{ExitCode: ExitInternalError}, err
		}
		return Result{ExitCode: ExitSuccess}, nil
	}

	reg := registry.Builtins()

	var p pool.Pool
	switch cfg.Executor {
	case "process":
		exe, err := os.Executable()
		if err != nil {
			return Result{ExitCode: ExitInternalError}, fmt.Errorf("resolving worker executable: %w", err)
		}
		p = pool.NewIsolatedPool(cfg.MaxWorkers, exe)
	default:
		p = pool.NewSharedPool(cfg.MaxWorkers, reg)
	}
	defer p.Shutdown(context.Background(), true)

	var resultCache cache.Cache = cache.NoopCache{}
	if cfg.CacheDir != "" {
		resultCache = cache.NewFileCache(cfg.CacheDir)
	}

	logger := logging.Init(logW, slog.LevelInfo)
	sink := metrics.MultiSink{logging.SlogSink{Logger: logger}}
	if inv.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		collector := metrics.NewCollector(promReg)
		sink = append(sink, collector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: inv.MetricsAddr, Handler: mux}
		go srv.ListenAndServe()
		defer srv.Close()
	}

	sched := scheduler.New(g, scheduler.Options{
		Pool:           p,
		Cache:          resultCache,
		DefaultPolicy:  retry.Default(),
		TagLimits:      cfg.TagLimits,
		GlobalLimit:    cfg.MaxWorkers,
		OverallTimeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		Sink:           sink,
	})

	sum, err := sched.Run(ctx)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}

	b, err := sum.CanonicalJSON()
	if err != nil {
		return Result{ExitCode: ExitInternalError, Summary: sum}, err
	}
	if cfg.SummaryJSON != "" {
		if err := os.WriteFile(cfg.SummaryJSON, b, 0o644); err != nil {
			return Result{ExitCode: ExitInternalError, Summary: sum}, fmt.Errorf("writing summary: %w", err)
		}
	} else if _, err := os.Stdout.Write(append(b, '\n')); err != nil {
		return Result{ExitCode: ExitInternalError, Summary: sum}, err
	}

	tally := sum.TallyByStatus()
	if tally["failed"] > 0 || tally["skipped"] > 0 {
		return Result{ExitCode: ExitTaskFailure, Summary: sum}, nil
	}
	return Result{ExitCode: ExitSuccess, Summary: sum}, nil
}

