package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/usersim/internal/backend"
	"github.com/nvandessel/usersim/internal/config"
	"github.com/nvandessel/usersim/internal/logging"
	"github.com/nvandessel/usersim/internal/metrics"
	"github.com/nvandessel/usersim/internal/notify"
	"github.com/nvandessel/usersim/internal/panel"
	"github.com/spf13/cobra"
)

// app is one configured panel plus the sinks and observers attached to it.
type app struct {
	cfg     *config.UsersimConfig
	dir     string
	logger  *slog.Logger
	panel   *panel.Panel
	inbox   *notify.Inbox
	hub     *notify.Hub
	metrics *metrics.Collector
	ticks   *logging.TickLogger
}

type appOptions struct {
	// hub attaches a websocket hub as a notification sink.
	hub bool
	// metrics attaches a Prometheus collector as an observer.
	metrics bool
	// sinks are appended after the configured ones.
	sinks []panel.Notifier
	// interval overrides simulation.interval when positive.
	interval time.Duration
}

// usersimDir returns the project's .usersim directory.
func usersimDir(cmd *cobra.Command) string {
	root, _ := cmd.Flags().GetString("root")
	return filepath.Join(root, ".usersim")
}

// loadConfig loads and validates the user configuration.
func loadConfig() (*config.UsersimConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp builds a panel against the configured backend. Logs go to stderr so
// stdout stays free for command output and the MCP transport.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	a := &app{
		cfg:    cfg,
		dir:    usersimDir(cmd),
		logger: logger,
	}

	sinks := []panel.Notifier{notify.NewLogSink(logger)}
	if cfg.Notify.Desktop {
		sinks = append(sinks, notify.NewDesktop(logger))
	}
	if cfg.Notify.Inbox {
		inbox, err := notify.OpenInbox(a.dir, logger)
		if err != nil {
			// The panel still works without history.
			logger.Warn("notification inbox unavailable", "error", err)
		} else {
			a.inbox = inbox
			sinks = append(sinks, inbox)
		}
	}
	if opts.hub {
		a.hub = notify.NewHub(logger)
		sinks = append(sinks, a.hub)
	}
	sinks = append(sinks, opts.sinks...)

	var observers panel.Observers
	if opts.metrics {
		a.metrics = metrics.New()
		observers = append(observers, a.metrics)
	}
	if tl := logging.NewTickLogger(a.dir, cfg.Logging.Level); tl != nil {
		a.ticks = tl
		observers = append(observers, tl)
	}

	client := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		APIToken: cfg.Backend.APIToken,
		Timeout:  cfg.Backend.Timeout,
	})
	interval := cfg.Simulation.Interval
	if opts.interval > 0 {
		interval = opts.interval
	}
	a.panel = panel.New(panel.Options{
		Counter:  client,
		Invoker:  client,
		Notifier: notify.NewMulti(sinks...),
		Interval: interval,
		Overlap:  panel.OverlapPolicy(cfg.Simulation.Overlap),
		Observer: observers,
		Logger:   logger,
	})
	a.panel.SetChangePercent(cfg.Simulation.DefaultChangePercent)

	logger.Debug("panel configured", "backend", cfg.Backend, "interval", interval, "dir", a.dir)
	return a, nil
}

// load resolves the total user count. A backend failure is reported on
// stderr and leaves the panel showing "No users found".
func (a *app) load(cmd *cobra.Command) {
	if err := a.panel.Load(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not load total users from %s: %v\n", a.cfg.Backend.BaseURL, err)
	}
}

// Close stops the panel, waiting for in-flight invocations to notify, then
// releases the sinks.
func (a *app) Close() error {
	err := a.panel.Close()
	if a.hub != nil {
		a.hub.Close()
	}
	if a.inbox != nil {
		if cerr := a.inbox.Close(); err == nil {
			err = cerr
		}
	}
	a.ticks.Close()
	return err
}

// printSink writes notifications to a terminal or as JSON lines.
type printSink struct {
	mu      sync.Mutex
	w       io.Writer
	jsonOut bool
}

func (p *printSink) Notify(ctx context.Context, n panel.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printNotification(p.w, n, p.jsonOut)
}

func printNotification(w io.Writer, n panel.Notification, jsonOut bool) {
	if jsonOut {
		json.NewEncoder(w).Encode(n)
		return
	}
	mark := "✓"
	if n.Kind == panel.KindError {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s  %s: %s\n", n.Time.Format("15:04:05"), mark, n.Title, n.Description)
}

// applyPanelFlags applies --active and --percent. Without --active every
// user is targeted.
func applyPanelFlags(cmd *cobra.Command, p *panel.Panel) {
	if cmd.Flags().Changed("active") {
		active, _ := cmd.Flags().GetInt("active")
		p.SetTargetActiveUsers(active)
	} else {
		p.SetTargetActiveUsers(p.State().TotalUsers)
	}
	if cmd.Flags().Changed("percent") {
		percent, _ := cmd.Flags().GetString("percent")
		p.SetChangePercentText(percent)
	}
}

func addPanelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("active", 0, "Active users to simulate per tick (default: all users)")
	cmd.Flags().String("percent", "", "Percentage of simulated users that change data (default: config)")
}
