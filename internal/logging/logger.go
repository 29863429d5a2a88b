// Package logging provides structured logging configuration using log/slog.
//
// HTTP request logs carry the chi request id; import runs carry the job id
// assigned when the job was enqueued, so one upload can be followed from
// the endpoint through every batch the worker loads.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const jobIDKey ctxKey = iota

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w without installing it globally.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithJobID attaches an import job id to ctx.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext returns the job id stored by ContextWithJobID, if any.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// FromContext returns the default logger enriched with request_id and
// job_id when ctx carries them.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if jobID := JobIDFromContext(ctx); jobID != "" {
		logger = logger.With("job_id", jobID)
	}

	return logger
}

// WithFields returns a context logger with additional structured fields.
//
// Usage:
//
//	log := logging.WithFields(ctx, "platform", name, "batch", n)
//	log.Info("batch loaded", "orders", inserted)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// WithRun returns the logger used for the lifetime of one import run.
func WithRun(ctx context.Context, platform, source string) *slog.Logger {
	return WithFields(ctx, "platform", platform, "source", source)
}
