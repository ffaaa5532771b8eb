// Package panel implements the active user simulation panel: the operator's
// selection of a target active-user count and change percentage, and the
// poll loop that repeatedly invokes a simulation step while simulating.
//
// The panel owns only local state. The user count, the simulation step and
// the display of results are collaborators supplied through Options.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed panel.
	ErrClosed = errors.New("panel closed")

	// ErrNotLoaded means the total user count has not resolved yet.
	ErrNotLoaded = errors.New("total users not loaded")

	// ErrNoUsers means there are no users to simulate.
	ErrNoUsers = errors.New("no users found")

	// ErrNoTarget means the target active user count is zero.
	ErrNoTarget = errors.New("no active users selected")
)

// Options configures a Panel. Counter, Invoker and Notifier are required.
type Options struct {
	Counter  UserCounter
	Invoker  Invoker
	Notifier Notifier

	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration

	// Overlap defaults to OverlapAllow.
	Overlap OverlapPolicy

	// Observer is optional.
	Observer Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ticker is the subset of *time.Ticker the loop needs.
type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

// Panel is safe for concurrent use.
type Panel struct {
	counter  UserCounter
	invoker  Invoker
	notifier Notifier
	interval time.Duration
	overlap  OverlapPolicy
	observer Observer
	logger   *slog.Logger

	newTicker func(time.Duration) ticker // injectable for tests
	nowFunc   func() time.Time

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc // set while simulating
	loops    sync.WaitGroup
	inflight sync.WaitGroup
	running  int // in-flight invocations
	closed   bool
}

// New creates a panel in its mounted state: loading, idle, target 0 and a
// change fraction of DefaultChangeFraction. Call Load to resolve the total.
func New(opts Options) *Panel {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	overlap := opts.Overlap
	if overlap == "" {
		overlap = OverlapAllow
	}
	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Panel{
		counter:   opts.Counter,
		invoker:   opts.Invoker,
		notifier:  opts.Notifier,
		interval:  interval,
		overlap:   overlap,
		observer:  observer,
		logger:    logger,
		newTicker: newTimeTicker,
		nowFunc:   time.Now,
		state: State{
			Loading:        true,
			ChangeFraction: DefaultChangeFraction,
		},
	}
}

// State returns a snapshot of the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interval returns the tick spacing.
func (p *Panel) Interval() time.Duration {
	return p.interval
}

// Load resolves the total user count. The panel reports Loading until the
// counter returns. A counter error leaves the total absent (zero) and is
// returned to the caller. The target is re-clamped against the new total.
func (p *Panel) Load(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	total, err := p.counter.CountUsers(ctx)
	if err != nil {
		p.logger.Warn("total user lookup failed", "error", err)
		total = 0
	}
	if total < 0 {
		total = 0
	}

	p.mu.Lock()
	p.state.Loading = false
	p.state.TotalUsers = total
	p.state.TargetActiveUsers = clamp(p.state.TargetActiveUsers, total)
	p.mu.Unlock()

	p.logger.Debug("total users loaded", "total", total)
	return err
}

// SetTargetActiveUsers sets the target count, clamped to [0, total].
// It returns the stored value.
func (p *Panel) SetTargetActiveUsers(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.TargetActiveUsers = clamp(n, p.state.TotalUsers)
	return p.state.TargetActiveUsers
}

// SetChangePercent stores percent/100 as the change fraction. The value is
// not range checked.
func (p *Panel) SetChangePercent(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ChangeFraction = percent / 100
}

// SetChangePercentText parses operator input with ParsePercent and stores it.
// Malformed text produces a NaN fraction rather than an error.
func (p *Panel) SetChangePercentText(text string) {
	p.SetChangePercent(ParsePercent(text))
}

// Start begins simulating. The first invocation is issued before Start
// returns, then one every interval. It returns false without effect when the
// target is 0, the panel is already simulating, or the panel is closed.
func (p *Panel) Start() bool {
	p.mu.Lock()
	tr := p.startLocked()
	p.mu.Unlock()

	p.apply(tr)
	return tr.started
}

// transition is observer and launch work collected under p.mu and carried
// out after it is released.
type transition struct {
	started bool
	stopped bool
	skipped bool
	req     Request
	launch  bool // req must be invoked
}

func (p *Panel) startLocked() transition {
	if p.closed || p.state.Simulating || p.state.ToggleDisabled() {
		return transition{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.state.Simulating = true
	p.cancel = cancel
	p.loops.Add(1)
	go p.loop(ctx)

	// The immediate tick is reserved here so a Stop racing the loop
	// goroutine cannot cancel it.
	tr := transition{started: true, req: p.requestLocked()}
	tr.launch = p.reserveLocked()
	tr.skipped = !tr.launch
	return tr
}

// Stop ends simulating. No tick is issued after Stop returns; invocations
// already in flight still complete and still notify. It returns false when
// the panel was idle.
func (p *Panel) Stop() bool {
	p.mu.Lock()
	tr := p.stopLocked()
	p.mu.Unlock()

	p.apply(tr)
	return tr.stopped
}

func (p *Panel) stopLocked() transition {
	if !p.state.Simulating {
		return transition{}
	}
	p.state.Simulating = false
	p.cancel()
	p.cancel = nil
	return transition{stopped: true}
}

// Toggle is the start/cancel button: it starts when idle and stops when
// simulating. It does nothing while the button is disabled (target 0) and
// reports whether the panel is simulating afterwards.
func (p *Panel) Toggle() bool {
	p.mu.Lock()
	var tr transition
	switch {
	case p.state.ToggleDisabled():
	case p.state.Simulating:
		tr = p.stopLocked()
	default:
		tr = p.startLocked()
	}
	simulating := p.state.Simulating
	p.mu.Unlock()

	p.apply(tr)
	return simulating
}

// apply reports a transition to the observer and logger and launches its
// invocation. Must be called without p.mu held.
func (p *Panel) apply(tr transition) {
	if tr.stopped {
		p.observer.SimulatingChanged(false)
		p.logger.Info("simulation stopped")
	}
	if tr.started {
		p.observer.SimulatingChanged(true)
		p.logger.Info("simulation started",
			"target", tr.req.TargetActiveUsers,
			"change_fraction", tr.req.ChangeFraction,
			"interval", p.interval)
	}
	if tr.skipped {
		p.observer.TickSkipped()
		p.logger.Debug("tick skipped, previous invocation still running")
	}
	if tr.launch {
		p.launch(tr.req)
	}
}

// Step runs one tick synchronously, outside the loop, and returns the
// notification it emitted.
func (p *Panel) Step(ctx context.Context) (Notification, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Notification{}, ErrClosed
	}
	req := p.requestLocked()
	p.running++
	p.mu.Unlock()

	return p.invoke(ctx, req), nil
}

// Close stops the loop and waits for in-flight invocations to emit their
// notifications. Further operations return ErrClosed or do nothing.
func (p *Panel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	tr := p.stopLocked()
	p.mu.Unlock()

	p.apply(tr)
	p.loops.Wait()
	p.inflight.Wait()
	return nil
}

func (p *Panel) requestLocked() Request {
	return Request{
		TargetActiveUsers: p.state.TargetActiveUsers,
		ChangeFraction:    p.state.ChangeFraction,
	}
}

// reserveLocked claims an invocation slot, or reports false when the overlap
// policy says to skip.
func (p *Panel) reserveLocked() bool {
	if p.overlap == OverlapSkip && p.running > 0 {
		return false
	}
	p.running++
	p.inflight.Add(1)
	return true
}

// loop owns the ticker for one simulating lifetime. The lifetime's first
// invocation is launched by Start.
func (p *Panel) loop(ctx context.Context) {
	defer p.loops.Done()

	t := p.newTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			p.tick(ctx)
		}
	}
}

// tick launches one invocation unless the lifetime ended or the overlap
// policy says to skip.
func (p *Panel) tick(ctx context.Context) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	tr := transition{req: p.requestLocked()}
	tr.launch = p.reserveLocked()
	tr.skipped = !tr.launch
	p.mu.Unlock()

	p.apply(tr)
}

// launch runs a reserved invocation in the background. Stop does not cancel
// an invocation that already started.
func (p *Panel) launch(req Request) {
	go func() {
		defer p.inflight.Done()
		p.invoke(context.Background(), req)
	}()
}

// invoke runs the simulation step and emits exactly one notification.
// The caller has already incremented p.running.
func (p *Panel) invoke(ctx context.Context, req Request) Notification {
	p.observer.InvocationStarted()
	start := p.nowFunc()

	count, err := p.invoker.Simulate(ctx, req)
	elapsed := p.nowFunc().Sub(start)

	p.mu.Lock()
	p.running--
	p.mu.Unlock()

	p.observer.InvocationFinished(req, count, elapsed, err)
	if err != nil {
		p.logger.Warn("simulation step reported error", "count", count, "error", err)
	} else {
		p.logger.Debug("simulation step finished", "count", count, "elapsed", elapsed)
	}

	n := NotificationFor(count, err, req.ChangeFraction)
	n.Time = p.nowFunc()
	p.notifier.Notify(ctx, n)
	return n
}
