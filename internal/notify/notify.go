// Package notify provides the sinks that receive simulation outcomes: the
// operational log, desktop notifications, a SQLite inbox and a websocket
// hub for connected panels.
package notify

import (
	"context"
	"log/slog"

	"github.com/nvandessel/usersim/internal/panel"
)

// Multi fans a notification out to every non-nil sink, in order.
type Multi []panel.Notifier

// NewMulti drops nil sinks.
func NewMulti(sinks ...panel.Notifier) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Notify implements panel.Notifier.
func (m Multi) Notify(ctx context.Context, n panel.Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// LogSink writes notifications to a slog.Logger. Errors log at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink writing to logger, or slog.Default if nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements panel.Notifier.
func (s *LogSink) Notify(ctx context.Context, n panel.Notification) {
	level := slog.LevelInfo
	if n.Kind == panel.KindError {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, n.Title, "description", n.Description)
}

var (
	_ panel.Notifier = Multi(nil)
	_ panel.Notifier = (*LogSink)(nil)
)
