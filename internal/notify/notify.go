// Package notify defines the notification capability the orchestrator uses
// to surface outcomes to whatever front end hosts it. It replaces ambient
// global notification hooks with an injected dependency.
package notify

import "log/slog"

// Notifier receives user-facing outcome notifications. Title is a short
// heading, message the detail line. Retryable marks errors the user may
// simply retry.
type Notifier interface {
	Success(title, message string)
	Info(title, message string)
	Error(title, message string, retryable bool)
}

// Log is a Notifier backed by slog, used when no interactive surface is
// attached.
type Log struct {
	Logger *slog.Logger
}

// NewLog creates a slog-backed notifier. A nil logger uses the default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger}
}

func (l *Log) Success(title, message string) {
	l.Logger.Info("notify", "level", "success", "title", title, "message", message)
}

func (l *Log) Info(title, message string) {
	l.Logger.Info("notify", "level", "info", "title", title, "message", message)
}

func (l *Log) Error(title, message string, retryable bool) {
	l.Logger.Error("notify", "level", "error", "title", title, "message", message, "retryable", retryable)
}

// Discard is a Notifier that drops everything (tests).
type Discard struct{}

func (Discard) Success(string, string)     {}
func (Discard) Info(string, string)        {}
func (Discard) Error(string, string, bool) {}
