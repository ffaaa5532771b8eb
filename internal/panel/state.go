package panel

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultInterval is the spacing between poll ticks while simulating.
	DefaultInterval = 5 * time.Second

	// DefaultChangeFraction is the initial share of simulated users that mutate data (1%).
	DefaultChangeFraction = 0.01
)

// OverlapPolicy decides what happens when a tick fires while an earlier
// invocation has not yet returned.
type OverlapPolicy string

const (
	// OverlapAllow starts the new invocation concurrently.
	OverlapAllow OverlapPolicy = "allow"

	// OverlapSkip drops the tick.
	OverlapSkip OverlapPolicy = "skip"
)

// Valid reports whether p is a known policy. The empty policy means allow.
func (p OverlapPolicy) Valid() bool {
	switch p {
	case "", OverlapAllow, OverlapSkip:
		return true
	}
	return false
}

// Request is the input of one simulation step, built fresh on every tick.
type Request struct {
	TargetActiveUsers int     `json:"target_active_users"`
	ChangeFraction    float64 `json:"change_fraction"`
}

// State is a snapshot of the panel's local state.
type State struct {
	// Loading is true until the first total-user lookup resolves.
	Loading bool

	// TotalUsers is the resolved total. Zero when the lookup failed.
	TotalUsers int

	// TargetActiveUsers is always within [0, TotalUsers].
	TargetActiveUsers int

	// ChangeFraction is not range checked; see SetChangePercentText.
	ChangeFraction float64

	Simulating bool
}

// ToggleDisabled reports whether the start/cancel control is disabled.
func (s State) ToggleDisabled() bool {
	return s.TargetActiveUsers == 0
}

// HasControls reports whether the panel renders its controls at all.
func (s State) HasControls() bool {
	return !s.Loading && s.TotalUsers > 0
}

// StartErr explains why Start would be refused from an idle state, or
// returns nil.
func (s State) StartErr() error {
	switch {
	case s.Loading:
		return ErrNotLoaded
	case s.TotalUsers <= 0:
		return ErrNoUsers
	case s.ToggleDisabled():
		return ErrNoTarget
	}
	return nil
}

// UserCounter supplies the total number of users.
type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

// Invoker performs one simulation step. A non-nil error may be returned
// together with the partial count that was achieved before it occurred.
type Invoker interface {
	Simulate(ctx context.Context, req Request) (int, error)
}

// Notifier displays short-lived messages to the operator. Implementations
// must not block for long and never report failures back.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Observer receives loop events. Used for metrics and tick logs. The panel
// never holds its lock while calling an Observer, so implementations may
// read panel state.
type Observer interface {
	SimulatingChanged(on bool)
	TickSkipped()
	InvocationStarted()
	InvocationFinished(req Request, count int, elapsed time.Duration, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

// SimulatingChanged forwards to every observer.
func (o Observers) SimulatingChanged(on bool) {
	for _, ob := range o {
		ob.SimulatingChanged(on)
	}
}

// TickSkipped forwards to every observer.
func (o Observers) TickSkipped() {
	for _, ob := range o {
		ob.TickSkipped()
	}
}

// InvocationStarted forwards to every observer.
func (o Observers) InvocationStarted() {
	for _, ob := range o {
		ob.InvocationStarted()
	}
}

// InvocationFinished forwards to every observer.
func (o Observers) InvocationFinished(req Request, count int, elapsed time.Duration, err error) {
	for _, ob := range o {
		ob.InvocationFinished(req, count, elapsed, err)
	}
}

type nopObserver struct{}

func (nopObserver) SimulatingChanged(bool) {}
func (nopObserver) TickSkipped() {}
func (nopObserver) InvocationStarted() {}
func (nopObserver) InvocationFinished(Request, int, time.Duration, error) {}

// clamp bounds n to [0, max].
func clamp(n, max int) int {
	if max < 0 {
		max = 0
	}
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// ParsePercent converts numeric-input text to a percentage the way a browser
// number field does: blank text is 0 and anything unparsable is NaN.
// No range check is applied.
func ParsePercent(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return v
}

// FormatPercent renders a change fraction as the 0-100 value shown in the
// percentage input.
func FormatPercent(fraction float64) string {
	v := fraction * 100
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		// hide float noise such as 7.000000000000001
		v = math.Round(v*1e9) / 1e9
	}
	return formatNumber(v)
}

// formatNumber prints v without exponent or trailing zeros. -0 prints as 0.
func formatNumber(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
