package main

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/nvandessel/usersim/internal/ratelimit"
	"github.com/nvandessel/usersim/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Control requests per second and burst allowed per API route.
const (
	controlRate  = 5
	controlBurst = 20
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation panel in the browser",
		Long: `Start a local web server with the simulation panel and open it in the
browser. Notifications appear as toasts while the page is open and are kept
in the inbox. Prometheus metrics are served at /metrics.

Blocks until Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noOpen, _ := cmd.Flags().GetBool("no-open")

			a, err := newApp(cmd, appOptions{hub: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Server.Addr
			if cmd.Flags().Changed("addr") {
				addr, _ = cmd.Flags().GetString("addr")
			}

			opts := server.Options{
				Panel:   a.panel,
				Hub:     a.hub,
				Metrics: a.metrics.Handler(),
				Limiter: ratelimit.NewLimiter(controlRate, controlBurst),
				Addr:    addr,
				Logger:  a.logger,
			}
			if a.inbox != nil {
				opts.Inbox = a.inbox
			}
			srv, err := server.New(opts)
			if err != nil {
				return err
			}

			a.load(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.ListenAndServe(gctx); err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				url, err := waitForURL(gctx, srv, 3*time.Second)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Panel running at %s\n", url)
				fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

				if !noOpen && a.cfg.Server.OpenBrowser {
					if err := server.OpenBrowser(url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
					}
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().Bool("no-open", false, "Don't open the panel in a browser")
	cmd.Flags().String("addr", "", "Listen address (default: config, or a free localhost port)")
	return cmd
}

// waitForURL polls until the server has a listen address.
func waitForURL(ctx context.Context, srv *server.Server, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		if url := srv.URL(); url != "" {
			return url, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("server failed to start")
		case <-poll.C:
		}
	}
}
