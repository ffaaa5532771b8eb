package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readAudit(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var entries []AuditEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("parsing audit entry %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	t.Run("nil logger Log is no-op", func(t *testing.T) {
		var logger *AuditLogger
		logger.Log(AuditEntry{Tool: "test"})
	})

	t.Run("nil logger Close is no-op", func(t *testing.T) {
		var logger *AuditLogger
		if err := logger.Close(); err != nil {
			t.Errorf("Close() on nil logger returned error: %v", err)
		}
	})
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	logger.Log(AuditEntry{
		Timestamp:  time.Now(),
		Tool:       "usersim_step",
		DurationMs: 42,
		Status:     "success",
		Params:     map[string]string{"_param_count": "0"},
	})

	entries := readAudit(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Tool != "usersim_step" || e.DurationMs != 42 || e.Status != "success" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	defer logger.Close()

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestAuditLogger_CloseTwice(t *testing.T) {
	logger := NewAuditLogger(t.TempDir())
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	// Log after close is a no-op
	logger.Log(AuditEntry{Tool: "late"})
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger := NewAuditLogger(dir)
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "usersim_status", Status: "success"})
		}()
	}
	wg.Wait()

	if entries := readAudit(t, dir); len(entries) != 50 {
		t.Errorf("got %d entries, want 50", len(entries))
	}
}

func TestAuditParams(t *testing.T) {
	got := auditParams(map[string]any{
		"count":   12,
		"percent": strings.Repeat("9", 40),
	})
	if got["count"] != "12" {
		t.Errorf("count = %q", got["count"])
	}
	if n := len([]rune(got["percent"])); n != maxParamLen+1 {
		t.Errorf("percent length = %d, want truncated to %d plus ellipsis", n, maxParamLen)
	}
	if got["_param_count"] != "2" {
		t.Errorf("_param_count = %q", got["_param_count"])
	}

	if empty := auditParams(nil); empty["_param_count"] != "0" || len(empty) != 1 {
		t.Errorf("auditParams(nil) = %v", empty)
	}
}

func TestHandlers_AreAudited(t *testing.T) {
	rig := setupTestServer(t, 10, nil)
	ctx := context.Background()

	rig.server.handleSetTarget(ctx, nil, SetTargetInput{Count: 3})
	rig.server.handleStart(ctx, nil, StartInput{})
	rig.server.handleStop(ctx, nil, StopInput{})
	rig.server.handleNotifications(ctx, nil, NotificationsInput{Limit: -2})

	entries := readAudit(t, rig.dir)
	wantTools := []string{"usersim_set_target", "usersim_start", "usersim_stop", "usersim_notifications"}
	if len(entries) != len(wantTools) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(wantTools), entries)
	}
	for i, tool := range wantTools {
		if entries[i].Tool != tool {
			t.Errorf("entry %d tool = %q, want %q", i, entries[i].Tool, tool)
		}
	}
	if entries[0].Params["count"] != "3" {
		t.Errorf("set_target params = %v", entries[0].Params)
	}
	if last := entries[len(entries)-1]; last.Status != "error" || last.Error == "" {
		t.Errorf("last entry = %+v, want error status", last)
	}
}
