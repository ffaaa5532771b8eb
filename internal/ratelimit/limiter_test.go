package ratelimit

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock returns a limiter whose clock only moves when advance is called.
func fakeClock(l *Limiter) (advance func(time.Duration)) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestLimiter_Allow(t *testing.T) {
	type step struct {
		wait time.Duration
		key  string
		want bool
	}
	tests := []struct {
		name  string
		rate  float64
		burst int
		steps []step
	}{
		{
			name: "burst then reject", rate: 1, burst: 2,
			steps: []step{{0, "/api/start", true}, {0, "/api/start", true}, {0, "/api/start", false}},
		},
		{
			name: "refills over time", rate: 10, burst: 1,
			steps: []step{{0, "/api/step", true}, {50 * time.Millisecond, "/api/step", false}, {50 * time.Millisecond, "/api/step", true}},
		},
		{
			name: "keys are independent", rate: 1, burst: 1,
			steps: []step{{0, "/api/start", true}, {0, "/api/start", false}, {0, "/api/stop", true}},
		},
		{
			name: "refill capped at burst", rate: 100, burst: 2,
			steps: []step{
				{0, "k", true}, {0, "k", true},
				{time.Minute, "k", true}, {0, "k", true}, {0, "k", false},
			},
		},
		{
			name: "zero rate never refills", rate: 0, burst: 1,
			steps: []step{{0, "k", true}, {time.Hour, "k", false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.rate, tt.burst)
			advance := fakeClock(l)
			for i, s := range tt.steps {
				advance(s.wait)
				if got := l.Allow(s.key); got != s.want {
					t.Errorf("step %d: Allow(%q) = %v, want %v", i, s.key, got, s.want)
				}
			}
		})
	}
}

func TestLimiter_ConcurrentAllow(t *testing.T) {
	l := NewLimiter(0, 25)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("/api/toggle") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 25 {
		t.Errorf("allowed %d requests, want exactly the burst of 25", got)
	}
}

func TestRetryAfter(t *testing.T) {
	l := NewLimiter(2.0, 1) // one token every 500ms
	advance := fakeClock(l)

	if got := l.RetryAfter("k"); got != 0 {
		t.Errorf("RetryAfter with full bucket = %v, want 0", got)
	}

	l.Allow("k")
	if got := l.RetryAfter("k"); got != 500*time.Millisecond {
		t.Errorf("RetryAfter after spending = %v, want 500ms", got)
	}

	advance(200 * time.Millisecond)
	if got := l.RetryAfter("k"); got != 300*time.Millisecond {
		t.Errorf("RetryAfter after 200ms = %v, want 300ms", got)
	}

	// RetryAfter must not consume a token
	advance(300 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("expected token after waiting RetryAfter")
	}
}

func TestRetryAfter_ZeroRate(t *testing.T) {
	l := NewLimiter(0, 1)
	l.Allow("k")
	if got := l.RetryAfter("k"); got != -1 {
		t.Errorf("RetryAfter with zero rate = %v, want -1", got)
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool  string
		burst int
	}{
		{"usersim_status", 10},
		{"usersim_notifications", 10},
		{"usersim_set_target", 5},
		{"usersim_set_percent", 5},
		{"usersim_start", 3},
		{"usersim_stop", 5},
		{"usersim_step", 2},
	}
	if len(limiters) != len(tests) {
		t.Errorf("got %d limiters, want %d", len(limiters), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			limiter, ok := limiters[tt.tool]
			if !ok {
				t.Fatalf("missing rate limiter for tool: %s", tt.tool)
			}
			if limiter.burst != tt.burst {
				t.Errorf("burst = %d, want %d", limiter.burst, tt.burst)
			}
		})
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters()

	// Unknown tool should pass (no limiter = no limit)
	if err := CheckLimit(limiters, "unknown_tool"); err != nil {
		t.Errorf("unexpected error for unknown tool: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, "usersim_step"); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
	}
	err := CheckLimit(limiters, "usersim_step")
	if err == nil || !strings.Contains(err.Error(), "usersim_step") {
		t.Errorf("err = %v, want rate limit error naming the tool", err)
	}

	// Other tools keep their own budget.
	if err := CheckLimit(limiters, "usersim_status"); err != nil {
		t.Errorf("usersim_status: %v", err)
	}
}
