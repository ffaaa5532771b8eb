// Package ratelimit provides per-key token bucket rate limiting for the MCP
// tools and the panel's HTTP control API.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Limiter is a token bucket per key. Every key starts with a full bucket of
// burst tokens and refills at rate tokens per second. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // bucket capacity
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling at rate tokens/sec up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// refillLocked returns key's bucket topped up to the current time.
func (l *Limiter) refillLocked(key string) *bucket {
	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}
	return b
}

// Allow takes one token for key. It reports false when the bucket is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refillLocked(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long until key has a whole token again, rounded up
// to the millisecond. Zero when a token is available now; -1 when the bucket
// never refills.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refillLocked(key)
	missing := 1 - b.tokens
	if missing <= 0 {
		return 0
	}
	if l.rate <= 0 {
		return -1
	}
	return time.Duration(math.Ceil(missing/l.rate*1000)) * time.Millisecond
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the per-tool limits for the MCP server. Read-only
// tools are generous; tools that reach the simulation backend are tight.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"usersim_status":        NewLimiter(1.0, 10),      // 60/minute, burst 10
		"usersim_notifications": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"usersim_set_target":    NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"usersim_set_percent":   NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"usersim_start":         NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"usersim_stop":          NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"usersim_step":          NewLimiter(6.0/60.0, 2),  // 6/minute, burst 2
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter always pass.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
