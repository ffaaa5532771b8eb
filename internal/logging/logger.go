// Package logging provides leveled logging and tick tracing for usersim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TickLogger for structured JSONL loop traces (.usersim/ticks.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, skipped ticks and start/stop transitions are also traced.
const LevelTrace = slog.LevelDebug - 4

// TicksFile is the name of the tick trace inside the usersim directory.
const TicksFile = "ticks.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// TickLogger writes one JSONL line per finished invocation. At trace level
// it also records skipped ticks and simulating transitions. It implements
// panel.Observer and is safe for concurrent use. A nil TickLogger is safe
// to use; all methods are no-ops on nil receiver.
type TickLogger struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewTickLogger creates a tick logger writing to dir/ticks.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewTickLogger(dir string, level string) *TickLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, TicksFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TickLogger{file: f, trace: lvl <= LevelTrace}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (tl *TickLogger) Log(event map[string]any) {
	if tl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_, _ = tl.file.Write(data)
}

// SimulatingChanged implements panel.Observer.
func (tl *TickLogger) SimulatingChanged(on bool) {
	if tl == nil || !tl.trace {
		return
	}
	event := "stopped"
	if on {
		event = "started"
	}
	tl.Log(map[string]any{"event": event})
}

// TickSkipped implements panel.Observer.
func (tl *TickLogger) TickSkipped() {
	if tl == nil || !tl.trace {
		return
	}
	tl.Log(map[string]any{"event": "skipped"})
}

// InvocationStarted implements panel.Observer.
func (tl *TickLogger) InvocationStarted() {}

// InvocationFinished implements panel.Observer. The change percentage is
// written as text so NaN input still produces a line.
func (tl *TickLogger) InvocationFinished(req panel.Request, count int, elapsed time.Duration, err error) {
	if tl == nil {
		return
	}
	event := map[string]any{
		"event":          "invocation",
		"target":         req.TargetActiveUsers,
		"change_percent": panel.FormatPercent(req.ChangeFraction),
		"count":          count,
		"elapsed_ms":     elapsed.Milliseconds(),
	}
	if err != nil {
		event["error"] = err.Error()
	}
	tl.Log(event)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TickLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}

var _ panel.Observer = (*TickLogger)(nil)
