// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger in production and a text logger otherwise, writing to stdout.
func New(env, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a LOG_LEVEL value to a slog level; unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger for tests and for callers that do not want output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
