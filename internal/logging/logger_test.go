package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func readTicks(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, TicksFile))
	if err != nil {
		t.Fatalf("failed to read ticks.jsonl: %v", err)
	}
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", line, err)
		}
		events = append(events, m)
	}
	return events
}

func TestNewTickLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "info")

	if tl != nil {
		t.Error("expected nil TickLogger at info level")
	}

	// Nil logger should still be safe to use
	tl.Log(map[string]any{"event": "test"})
	tl.InvocationFinished(panel.Request{}, 1, time.Millisecond, nil)

	if _, err := os.Stat(filepath.Join(dir, TicksFile)); err == nil {
		t.Error("ticks.jsonl should not exist at info level")
	}
}

func TestTickLogger_DebugRecordsInvocations(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TickLogger at debug level")
	}
	defer tl.Close()

	tl.SimulatingChanged(true)
	tl.TickSkipped()
	tl.InvocationFinished(panel.Request{TargetActiveUsers: 20, ChangeFraction: 0.25}, 20, 1500*time.Millisecond, nil)
	tl.InvocationFinished(panel.Request{TargetActiveUsers: 20, ChangeFraction: 0.25}, 4, time.Second, errors.New("db locked"))

	events := readTicks(t, dir)
	if len(events) != 2 {
		t.Fatalf("expected 2 invocation lines at debug level, got %d: %v", len(events), events)
	}

	first := events[0]
	if first["event"] != "invocation" || first["target"] != float64(20) || first["count"] != float64(20) {
		t.Errorf("first event = %v", first)
	}
	if first["change_percent"] != "25" {
		t.Errorf("change_percent = %v, want \"25\"", first["change_percent"])
	}
	if first["elapsed_ms"] != float64(1500) {
		t.Errorf("elapsed_ms = %v, want 1500", first["elapsed_ms"])
	}
	if _, ok := first["error"]; ok {
		t.Error("successful invocation should not carry an error field")
	}
	if _, ok := first["time"]; !ok {
		t.Error("expected time field")
	}

	if events[1]["error"] != "db locked" {
		t.Errorf("second event error = %v, want 'db locked'", events[1]["error"])
	}
}

func TestTickLogger_TraceRecordsTransitions(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "trace")
	defer tl.Close()

	tl.SimulatingChanged(true)
	tl.TickSkipped()
	tl.SimulatingChanged(false)

	events := readTicks(t, dir)
	want := []string{"started", "skipped", "stopped"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i]["event"] != w {
			t.Errorf("event[%d] = %v, want %q", i, events[i]["event"], w)
		}
	}
}

func TestTickLogger_NaNPercentStillWritten(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	tl.InvocationFinished(panel.Request{TargetActiveUsers: 3, ChangeFraction: math.NaN()}, 3, 0, nil)

	events := readTicks(t, dir)
	if len(events) != 1 || events[0]["change_percent"] != "NaN" {
		t.Errorf("events = %v, want one line with NaN percent", events)
	}
}

func TestTickLogger_NilSafety(t *testing.T) {
	var tl *TickLogger
	tl.Log(map[string]any{"event": "should_not_panic"})
	tl.SimulatingChanged(true)
	tl.TickSkipped()
	tl.InvocationStarted()
	tl.InvocationFinished(panel.Request{}, 0, 0, nil)
	tl.Close()
}

func TestTickLogger_DoesNotMutateCallerMap(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	event := map[string]any{"event": "test"}
	tl.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestTickLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")

	tl.Log(map[string]any{"event": "before_close"})
	tl.Close()

	// Should be a no-op, not panic or error
	tl.Log(map[string]any{"event": "after_close"})
	tl.Close()

	if events := readTicks(t, dir); len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestNewTickLogger_CreatesDir(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "sub", "dir")

	tl := NewTickLogger(nestedDir, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TickLogger when dir needs creation")
	}
	defer tl.Close()

	tl.Log(map[string]any{"event": "dir_create_test"})

	if _, err := os.Stat(filepath.Join(nestedDir, TicksFile)); err != nil {
		t.Fatalf("ticks.jsonl should exist after dir creation: %v", err)
	}
}

func TestTickLogger_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir, "debug")
	defer tl.Close()

	tl.Log(map[string]any{"event": "perm_test"})

	info, err := os.Stat(filepath.Join(dir, TicksFile))
	if err != nil {
		t.Fatalf("failed to stat ticks.jsonl: %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
