package common

import (
	"io"
	"log/slog"
)

// NewLogger builds the JSON slog logger used by every binary and installs it as default.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
