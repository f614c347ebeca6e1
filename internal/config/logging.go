package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process logger from cfg: human-readable text on
// stderr plus JSON appended to cfg.LogFile, both filtered at cfg.LogLevel.
// The returned closer releases the log file; when the file cannot be opened
// the logger degrades to stderr only and the closer is a no-op.
func NewLogger(cfg Config) (*slog.Logger, func() error) {
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("cannot open log file, logging to stderr only",
			"file", cfg.LogFile, "error", err)
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.LogLevel,
		}))
		return logger, func() error { return nil }
	}

	logger := slog.New(dualHandler(os.Stderr, file, cfg.LogLevel))
	return logger, file.Close
}

// dualHandler fans each record out twice: text for a human watching the
// console, JSON for whatever ships the log file.
func dualHandler(console, file io.Writer, level slog.Level) slog.Handler {
	return slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	)
}
