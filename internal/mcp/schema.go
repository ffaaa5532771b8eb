package mcp

// StatusInput defines the input for usersim_status.
type StatusInput struct{}

// StatusOutput describes the panel after a tool call.
type StatusOutput struct {
	Status            string `json:"status" jsonschema:"Panel status: loading, no-users or ready"`
	TotalUsers        int    `json:"total_users" jsonschema:"Total users known to the backend"`
	TargetActiveUsers int    `json:"target_active_users" jsonschema:"Number of users simulated per tick"`
	ChangePercent     string `json:"change_percent" jsonschema:"Percentage of simulated users changing data (may be NaN)"`
	Simulating        bool   `json:"simulating" jsonschema:"Whether the poll loop is running"`
	ToggleDisabled    bool   `json:"toggle_disabled" jsonschema:"Whether start/cancel is disabled because the target is zero"`
	Display           string `json:"display" jsonschema:"Text rendering of the panel"`
}

// SetTargetInput defines the input for usersim_set_target.
type SetTargetInput struct {
	Count int `json:"count" jsonschema:"Target active user count; clamped to [0, total users]"`
}

// SetPercentInput defines the input for usersim_set_percent.
type SetPercentInput struct {
	Percent string `json:"percent" jsonschema:"Percentage of active users changing data, as typed (e.g. '12.5'); blank means 0"`
}

// StartInput defines the input for usersim_start.
type StartInput struct{}

// StopInput defines the input for usersim_stop.
type StopInput struct{}

// StepInput defines the input for usersim_step.
type StepInput struct{}

// StepOutput is the outcome of a single simulation step.
type StepOutput struct {
	Notification NotificationItem `json:"notification" jsonschema:"The notification produced by the step"`
	Panel        StatusOutput     `json:"panel" jsonschema:"Panel state after the step"`
}

// NotificationsInput defines the input for usersim_notifications.
type NotificationsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum notifications to return, newest first (default: 20)"`
}

// NotificationsOutput lists stored notifications.
type NotificationsOutput struct {
	Notifications []NotificationItem `json:"notifications" jsonschema:"Stored notifications, newest first"`
	Count         int                `json:"count" jsonschema:"Number of notifications returned"`
}

// NotificationItem is a flattened notification.
type NotificationItem struct {
	ID          string `json:"id,omitempty"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Time        string `json:"time,omitempty"`
}
