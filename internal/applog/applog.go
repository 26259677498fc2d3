// Package applog provides the structured logger used throughout the runtime,
// standing in for the teacher's ad-hoc log.Printf call sites and modeled on
// original_source's structlog usage (leveled, field-based, one logger per
// process passed down rather than recreated).
package applog

import (
	"context"
	"log/slog"
	"os"
)

// New builds the process-wide structured logger. jsonOutput selects JSON
// encoding (production) vs text encoding (local development), mirroring the
// teacher's environment-driven behavior elsewhere (e.g. CORS/origin checks).
func New(jsonOutput bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

type ctxKey struct{}

// WithLogger attaches a logger to a context so deep call chains (system
// pipes, repository calls) can log with request-scoped fields without
// threading a *slog.Logger parameter through every signature.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext retrieves the logger attached by WithLogger, falling back to
// slog.Default() so call sites never need a nil check.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}
