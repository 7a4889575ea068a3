package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON to stdout so log shippers can parse
// it; level comes from the environment via config.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
