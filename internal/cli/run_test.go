package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeWorkflow(t *testing.T, dir, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "wf.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestExecuteSucceedsAndWritesSummaryFile(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `{
		"name": "wf",
		"tasks": [
			{"id": "a", "fn": "math:add", "args": [1, 2]},
			{"id": "b", "fn": "math:add", "deps": ["a"], "args": [{"ref": "a"}, 1]}
		]
	}`)
	summaryPath := filepath.Join(dir, "summary.json")

	logR, logW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer logR.Close()
	go drain(logR)

	inv := Invocation{WorkflowPath: path, MaxWorkers: 2, SummaryJSONPath: summaryPath}
	result, err := Execute(context.Background(), inv, logW)
	logW.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitSuccess {
		t.Fatalf("exit code: got %d, want %d", result.ExitCode, ExitSuccess)
	}
	if result.Summary.TallyByStatus()["succeeded"] != 2 {
		t.Fatalf("expected 2 succeeded outcomes, got %v", result.Summary.TallyByStatus())
	}
	if _, err := os.Stat(summaryPath); err != nil {
		t.Fatalf("expected summary file: %v", err)
	}
}

func TestExecuteReportsTaskFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `{
		"name": "wf",
		"tasks": [
			{"id": "a", "fn": "util:always_fail", "retries": 0},
			{"id": "b", "fn": "math:add", "deps": ["a"], "args": [1]}
		]
	}`)
	summaryPath := filepath.Join(dir, "summary.json")

	logR, logW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer logR.Close()
	go drain(logR)

	inv := Invocation{WorkflowPath: path, MaxWorkers: 2, SummaryJSONPath: summaryPath}
	result, err := Execute(context.Background(), inv, logW)
	logW.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitTaskFailure {
		t.Fatalf("exit code: got %d, want %d", result.ExitCode, ExitTaskFailure)
	}
	tally := result.Summary.TallyByStatus()
	if tally["failed"] != 1 || tally["skipped"] != 1 {
		t.Fatalf("unexpected tally: %v", tally)
	}
}

func TestExecuteRejectsSchemaErrorBeforeRunning(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `{"name": "wf", "tasks": [{"id": "a", "fn": "x"}, {"id": "a", "fn": "y"}]}`)

	logR, logW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer logR.Close()
	go drain(logR)

	inv := Invocation{WorkflowPath: path, MaxWorkers: 2}
	result, err := Execute(context.Background(), inv, logW)
	logW.Close()
	if err == nil {
		t.Fatal("expected error for duplicate task id")
	}
	if got := ExitCode(err); got != ExitInvalidInvocation {
		t.Fatalf("exit code: got %d, want %d", got, ExitInvalidInvocation)
	}
	_ = result
}

func TestExecutePlanModeDoesNotRunAnything(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `{
		"name": "wf",
		"tasks": [
			{"id": "a", "fn": "util:always_fail"},
			{"id": "b", "fn": "math:add", "deps": ["a"], "args": [{"ref": "a"}]}
		]
	}`)

	logR, logW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer logR.Close()
	go drain(logR)

	inv := Invocation{WorkflowPath: path, MaxWorkers: 2, Plan: true}
	result, err := Execute(context.Background(), inv, logW)
	logW.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitSuccess {
		t.Fatalf("exit code: got %d, want %d", result.ExitCode, ExitSuccess)
	}
	if result.Summary != nil {
		t.Fatalf("plan mode should not produce a run summary, got %+v", result.Summary)
	}
}

func drain(r *os.File) {
	buf := make([]byte, 4096)
	for {
		if _, err := r.Read(buf); err != nil {
			return
		}
	}
}
