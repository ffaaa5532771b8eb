// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive the active user simulation panel.
package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/usersim/internal/notify"
	"github.com/nvandessel/usersim/internal/panel"
	"github.com/nvandessel/usersim/internal/ratelimit"
)

// NotificationLister returns stored notifications, newest first.
type NotificationLister interface {
	Recent(ctx context.Context, limit int) ([]notify.Record, error)
}

// Server wraps the MCP SDK server and exposes the panel as tools.
type Server struct {
	server       *sdk.Server
	panel        *panel.Panel
	inbox        NotificationLister
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "usersim")
	Version string // Server version
	Panel   *panel.Panel
	Inbox   NotificationLister // optional
	Dir     string             // usersim state directory; audit.jsonl lives here. Empty disables auditing.
}

// NewServer creates a new MCP server with the usersim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Panel == nil {
		return nil, fmt.Errorf("panel is required")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{})

	s := &Server{
		server:       mcpServer,
		panel:        cfg.Panel,
		inbox:        cfg.Inbox,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.Dir != "" {
		s.auditLogger = NewAuditLogger(cfg.Dir)
	}

	s.registerTools()

	return s, nil
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx is
// cancelled. Callers own signal handling.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log. The panel is owned by the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
