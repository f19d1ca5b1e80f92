// Package telemetry wires zerolog logging and OpenTelemetry metrics/tracing the
// way the teacher threads a logger through context and instruments its Dolt store
// (internal/storage/dolt/store.go) with otel counters and spans.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var fallback = zerolog.New(os.Stderr).With().Timestamp().Logger()

// NewLogger builds the process-wide base logger. Pretty-prints to a terminal,
// emits structured JSON otherwise.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// L retrieves the logger from ctx, falling back to the global zerolog logger.
func L(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return &logger
	}
	return &fallback
}
