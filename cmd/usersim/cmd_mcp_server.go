package main

import (
	"fmt"
	"os/signal"

	"github.com/nvandessel/usersim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout so an agent can
inspect and drive the simulation panel. Tool calls are rate limited and
recorded in .usersim/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			a.load(cmd)

			cfg := &mcp.Config{
				Name:    "usersim",
				Version: version,
				Panel:   a.panel,
				Dir:     a.dir,
			}
			if a.inbox != nil {
				cfg.Inbox = a.inbox
			}
			srv, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			a.logger.Info("MCP server starting", "version", version, "dir", a.dir)
			return srv.Run(ctx)
		},
	}
}
