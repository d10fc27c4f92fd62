// Package logging renders scheduler.Events as the JSON-lines diagnostic
// stream spec.md §6 defines, built on log/slog the way the reference
// worker's internal/logging wires a JSON handler through a redacting
// wrapper before installing it as the process default.
package logging

import (
	"context"
	"io"
	"log/slog"

	"taskflow/internal/scheduler"
)

// Init installs a JSON slog handler over w (typically os.Stderr, since
// spec.md §6 calls this the "diagnostic stream" distinct from stdout's
// summary output), wrapped in a redacting handler that replaces the value
// of any attribute whose key looks sensitive (args, result, tokens,
// passwords). Redaction is by key only; attribute values such as error_msg
// are not inspected.
func Init(w io.Writer, level slog.Level) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	handler = newRedactingHandler(handler)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SlogSink adapts a *slog.Logger into a scheduler.Sink, translating each
// Event into spec.md §6's record shape: ts, level, event, task_id?,
// attempt?, duration_ms?, status?, error_kind?, error_msg?. slog supplies
// ts/level itself; Emit only needs to attach the rest.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(e scheduler.Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"event", e.Event}
	if e.TaskID != "" {
		attrs = append(attrs, "task_id", e.TaskID)
	}
	if e.Attempt != 0 {
		attrs = append(attrs, "attempt", e.Attempt)
	}
	if e.DurationMs != 0 {
		attrs = append(attrs, "duration_ms", e.DurationMs)
	}
	if e.Status != "" {
		attrs = append(attrs, "status", e.Status)
	}
	if e.ErrorKind != "" {
		attrs = append(attrs, "error_kind", e.ErrorKind)
	}
	if e.ErrorMessage != "" {
		attrs = append(attrs, "error_msg", e.ErrorMessage)
	}

	level := slog.LevelInfo
	if e.ErrorKind != "" {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, e.Event, attrs...)
}
