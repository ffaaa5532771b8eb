package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/usersim/internal/notify"
	"github.com/nvandessel/usersim/internal/panel"
	"github.com/nvandessel/usersim/internal/ratelimit"
)

// defaultNotificationLimit applies when usersim_notifications gets no limit.
const defaultNotificationLimit = 20

// registerTools registers all usersim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_status",
		Description: "Show the active user simulation panel: total users, target, change percentage and whether it is simulating",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_set_target",
		Description: "Set how many active users each simulation tick simulates (clamped to the total user count)",
	}, s.handleSetTarget)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_set_percent",
		Description: "Set the percentage of simulated users that change data on each tick",
	}, s.handleSetPercent)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_start",
		Description: "Start simulating: one simulation step now, then one every interval until stopped",
	}, s.handleStart)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_stop",
		Description: "Stop simulating. A step already in flight still completes and reports",
	}, s.handleStop)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_step",
		Description: "Run a single simulation step with the current settings and return its notification",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "usersim_notifications",
		Description: "List recent simulation notifications, newest first",
	}, s.handleNotifications)
}

// statusOutput snapshots the panel.
func (s *Server) statusOutput() StatusOutput {
	st := s.panel.State()
	v := panel.Render(st)
	return StatusOutput{
		Status:            string(v.Status),
		TotalUsers:        st.TotalUsers,
		TargetActiveUsers: st.TargetActiveUsers,
		ChangePercent:     panel.FormatPercent(st.ChangeFraction),
		Simulating:        st.Simulating,
		ToggleDisabled:    st.ToggleDisabled(),
		Display:           v.Text(),
	}
}

func notificationItem(id string, n panel.Notification) NotificationItem {
	item := NotificationItem{
		ID:          id,
		Kind:        string(n.Kind),
		Title:       n.Title,
		Description: n.Description,
	}
	if !n.Time.IsZero() {
		item.Time = n.Time.UTC().Format(time.RFC3339)
	}
	return item
}

// handleStatus implements the usersim_status tool.
func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_status", start, retErr, auditParams(nil))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_status"); err != nil {
		return nil, StatusOutput{}, err
	}

	return nil, s.statusOutput(), nil
}

// handleSetTarget implements the usersim_set_target tool.
func (s *Server) handleSetTarget(ctx context.Context, req *sdk.CallToolRequest, args SetTargetInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_set_target", start, retErr, auditParams(map[string]any{"count": args.Count}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_set_target"); err != nil {
		return nil, StatusOutput{}, err
	}

	if st := s.panel.State(); !st.HasControls() {
		return nil, StatusOutput{}, st.StartErr()
	}

	s.panel.SetTargetActiveUsers(args.Count)
	return nil, s.statusOutput(), nil
}

// handleSetPercent implements the usersim_set_percent tool.
func (s *Server) handleSetPercent(ctx context.Context, req *sdk.CallToolRequest, args SetPercentInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_set_percent", start, retErr, auditParams(map[string]any{"percent": args.Percent}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_set_percent"); err != nil {
		return nil, StatusOutput{}, err
	}

	s.panel.SetChangePercentText(args.Percent)
	return nil, s.statusOutput(), nil
}

// handleStart implements the usersim_start tool.
func (s *Server) handleStart(ctx context.Context, req *sdk.CallToolRequest, args StartInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_start", start, retErr, auditParams(nil))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_start"); err != nil {
		return nil, StatusOutput{}, err
	}

	if !s.panel.Start() {
		st := s.panel.State()
		if !st.Simulating {
			if err := st.StartErr(); err != nil {
				return nil, StatusOutput{}, fmt.Errorf("cannot start simulation: %w", err)
			}
			return nil, StatusOutput{}, panel.ErrClosed
		}
	}
	return nil, s.statusOutput(), nil
}

// handleStop implements the usersim_stop tool.
func (s *Server) handleStop(ctx context.Context, req *sdk.CallToolRequest, args StopInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_stop", start, retErr, auditParams(nil))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_stop"); err != nil {
		return nil, StatusOutput{}, err
	}

	s.panel.Stop()
	return nil, s.statusOutput(), nil
}

// handleStep implements the usersim_step tool.
func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_step", start, retErr, auditParams(nil))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_step"); err != nil {
		return nil, StepOutput{}, err
	}

	n, err := s.panel.Step(ctx)
	if err != nil {
		return nil, StepOutput{}, fmt.Errorf("simulation step: %w", err)
	}
	return nil, StepOutput{
		Notification: notificationItem("", n),
		Panel:        s.statusOutput(),
	}, nil
}

// handleNotifications implements the usersim_notifications tool.
func (s *Server) handleNotifications(ctx context.Context, req *sdk.CallToolRequest, args NotificationsInput) (_ *sdk.CallToolResult, _ NotificationsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("usersim_notifications", start, retErr, auditParams(map[string]any{"limit": args.Limit}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "usersim_notifications"); err != nil {
		return nil, NotificationsOutput{}, err
	}

	if args.Limit < 0 {
		return nil, NotificationsOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultNotificationLimit
	}

	items := []NotificationItem{}
	if s.inbox != nil {
		records, err := s.inbox.Recent(ctx, limit)
		if err != nil {
			return nil, NotificationsOutput{}, fmt.Errorf("failed to read notifications: %w", err)
		}
		items = recordItems(records)
	}

	return nil, NotificationsOutput{Notifications: items, Count: len(items)}, nil
}

func recordItems(records []notify.Record) []NotificationItem {
	items := make([]NotificationItem, 0, len(records))
	for _, r := range records {
		items = append(items, notificationItem(r.ID, r.Notification))
	}
	return items
}
