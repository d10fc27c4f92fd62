// Command taskflow is the engine's CLI entrypoint. It re-execs itself as an
// isolated worker when TASKFLOW_ISOLATED_WORKER is set (see pool.WorkerEnv).
// Argument canonicalization always happens before any engine logic runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"taskflow/internal/cli"
	"taskflow/internal/pool"
	"taskflow/internal/registry"
)

func main() {
	if os.Getenv(pool.WorkerEnv) != "" {
		os.Exit(runWorker())
	}

	inv, err := cli.ParseInvocation(os.Args[1:])
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	result, execErr := cli.Execute(context.Background(), inv, os.Stderr)
	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
	}
	os.Exit(result.ExitCode)
}

// runWorker handles one isolated-pool submission read from stdin and writes
// its Outcome to stdout, per pool.RunWorkerJSON's contract. A task failure
// is carried inside the Outcome, so the exit code is 0 whenever an Outcome
// was written; it is ExitInternalError only when the submission could not
// be read, run, or the Outcome could not be written.
func runWorker() int {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading submission:", err)
		return cli.ExitInternalError
	}

	out, err := pool.RunWorkerJSON(context.Background(), registry.Builtins(), input)
	if err != nil {
		fmt.Fprintln(os.Stderr, "running submission:", err)
		return cli.ExitInternalError
	}

	if _, err := os.Stdout.Write(out); err != nil {
		fmt.Fprintln(os.Stderr, "writing outcome:", err)
		return cli.ExitInternalError
	}
	return cli.ExitSuccess
}
