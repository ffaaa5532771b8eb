// Package metrics exposes poll loop activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "usersim"

// Outcome label values for usersim_ticks_total.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Collector records loop events on a private registry. It implements
// panel.Observer.
type Collector struct {
	reg *prometheus.Registry

	ticks      *prometheus.CounterVec
	skipped    prometheus.Counter
	duration   prometheus.Histogram
	inflight   prometheus.Gauge
	simulating prometheus.Gauge
	simulated  prometheus.Counter
}

// New creates a collector and registers its metrics.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed simulation invocations by outcome.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks dropped because an invocation was still running.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Time spent in the simulation backend per invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_invocations",
			Help:      "Simulation invocations currently running.",
		}),
		simulating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulating",
			Help:      "1 while the poll loop is running.",
		}),
		simulated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_users_total",
			Help:      "Sum of active user counts reported by the backend.",
		}),
	}
	c.reg.MustRegister(c.ticks, c.skipped, c.duration, c.inflight, c.simulating, c.simulated)

	// Pre-create outcome series so they export as 0.
	c.ticks.WithLabelValues(OutcomeSuccess)
	c.ticks.WithLabelValues(OutcomeError)

	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// SimulatingChanged implements panel.Observer.
func (c *Collector) SimulatingChanged(on bool) {
	if on {
		c.simulating.Set(1)
	} else {
		c.simulating.Set(0)
	}
}

// TickSkipped implements panel.Observer.
func (c *Collector) TickSkipped() {
	c.skipped.Inc()
}

// InvocationStarted implements panel.Observer.
func (c *Collector) InvocationStarted() {
	c.inflight.Inc()
}

// InvocationFinished implements panel.Observer.
func (c *Collector) InvocationFinished(req panel.Request, count int, elapsed time.Duration, err error) {
	c.inflight.Dec()
	c.duration.Observe(elapsed.Seconds())
	if count > 0 {
		c.simulated.Add(float64(count))
	}
	if err != nil {
		c.ticks.WithLabelValues(OutcomeError).Inc()
		return
	}
	c.ticks.WithLabelValues(OutcomeSuccess).Inc()
}

var _ panel.Observer = (*Collector)(nil)
