package panel

import (
	"fmt"
	"strings"
)

// Status selects which of the three panel renderings applies.
type Status string

const (
	// StatusLoading is shown until the total user count resolves.
	StatusLoading Status = "loading"
	// StatusNoUsers replaces the controls when the total is zero.
	StatusNoUsers Status = "no-users"
	// StatusReady shows the slider, percentage input and toggle.
	StatusReady Status = "ready"
)

// NoUsersMessage is shown instead of the controls when there are no users.
const NoUsersMessage = "No users found"

// View is the rendering of a State. Controls are nil unless Status is
// StatusReady.
type View struct {
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Controls *Controls `json:"controls,omitempty"`
}

// Controls describes every rendered control of a ready panel.
type Controls struct {
	Heading       string       `json:"heading"`
	Simulating    bool         `json:"simulating"`
	TotalUsers    int          `json:"total_users"`
	Slider        Slider       `json:"slider"`
	SelectedLabel string       `json:"selected_label"`
	Percent       PercentInput `json:"percent"`
	Button        Button       `json:"button"`
}

// Slider is the range selector bound to [0, total].
type Slider struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Step  int `json:"step"`
	Value int `json:"value"`
}

// PercentInput is the numeric input showing the change fraction as 0-100.
// Value is text so NaN survives JSON encoding.
type PercentInput struct {
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Step  int    `json:"step"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// Button is the start/cancel toggle.
type Button struct {
	Label    string `json:"label"`
	Variant  string `json:"variant"`
	Disabled bool   `json:"disabled"`
}

// Render builds the view for s.
func Render(s State) View {
	if s.Loading {
		return View{Status: StatusLoading}
	}
	if s.TotalUsers <= 0 {
		return View{Status: StatusNoUsers, Message: NoUsersMessage}
	}

	c := &Controls{
		Simulating: s.Simulating,
		TotalUsers: s.TotalUsers,
		Slider: Slider{
			Min:   0,
			Max:   s.TotalUsers,
			Step:  1,
			Value: s.TargetActiveUsers,
		},
		SelectedLabel: fmt.Sprintf("%d users selected", s.TargetActiveUsers),
		Percent: PercentInput{
			Min:   0,
			Max:   100,
			Step:  1,
			Value: FormatPercent(s.ChangeFraction),
			Label: "% active users changing data",
		},
		Button: Button{Disabled: s.ToggleDisabled()},
	}

	if s.Simulating {
		c.Heading = fmt.Sprintf("Simulating Active Users (total users: %d)", s.TotalUsers)
		c.Button.Label = "Cancel Active User Simulation"
		c.Button.Variant = "destructive"
	} else {
		c.Heading = fmt.Sprintf("Simulate Active Users (total users: %d)", s.TotalUsers)
		c.Button.Label = fmt.Sprintf("Simulate %d Active Users", s.TargetActiveUsers)
		c.Button.Variant = "default"
	}

	return View{Status: StatusReady, Controls: c}
}

// View renders the panel's current state.
func (p *Panel) View() View {
	return Render(p.State())
}

// Text renders v for a terminal.
func (v View) Text() string {
	switch v.Status {
	case StatusLoading:
		return "Loading...\n"
	case StatusNoUsers:
		return v.Message + "\n"
	}

	c := v.Controls
	var b strings.Builder
	fmt.Fprintln(&b, c.Heading)
	fmt.Fprintf(&b, "  %s (0-%d)\n", c.SelectedLabel, c.Slider.Max)
	fmt.Fprintf(&b, "  %s %s\n", c.Percent.Value, c.Percent.Label)
	button := "[" + c.Button.Label + "]"
	if c.Button.Disabled {
		button += " (disabled)"
	}
	fmt.Fprintf(&b, "  %s\n", button)
	return b.String()
}
