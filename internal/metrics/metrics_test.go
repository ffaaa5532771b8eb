package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Invocations(t *testing.T) {
	c := New()
	req := panel.Request{TargetActiveUsers: 10, ChangeFraction: 0.1}

	c.InvocationStarted()
	c.InvocationStarted()
	if got := testutil.ToFloat64(c.inflight); got != 2 {
		t.Errorf("inflight = %v, want 2", got)
	}

	c.InvocationFinished(req, 10, 200*time.Millisecond, nil)
	c.InvocationFinished(req, 4, time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(c.inflight); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.ticks.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("success ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ticks.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("error ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.simulated); got != 14 {
		t.Errorf("simulated users = %v, want 14", got)
	}
	if got := testutil.CollectAndCount(c.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestCollector_SimulatingAndSkipped(t *testing.T) {
	c := New()

	c.SimulatingChanged(true)
	if got := testutil.ToFloat64(c.simulating); got != 1 {
		t.Errorf("simulating = %v, want 1", got)
	}
	c.TickSkipped()
	c.TickSkipped()
	c.SimulatingChanged(false)

	if got := testutil.ToFloat64(c.simulating); got != 0 {
		t.Errorf("simulating = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.skipped); got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.InvocationFinished(panel.Request{}, 3, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`usersim_ticks_total{outcome="success"} 1`,
		`usersim_ticks_total{outcome="error"} 0`,
		"usersim_ticks_skipped_total 0",
		"usersim_invocation_duration_seconds_count 1",
		"usersim_inflight_invocations",
		"usersim_simulating 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollector_PrivateRegistry(t *testing.T) {
	// Two collectors must not collide on registration.
	a, b := New(), New()
	a.TickSkipped()
	if got := testutil.ToFloat64(b.skipped); got != 0 {
		t.Errorf("collectors share state: b.skipped = %v", got)
	}
}
