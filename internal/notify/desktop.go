package notify

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"
	"github.com/nvandessel/usersim/internal/panel"
)

// Desktop shows each notification as an OS notification.
type Desktop struct {
	show   func(title, message string) error // injectable for tests
	logger *slog.Logger
}

// NewDesktop creates a desktop sink. Delivery failures are logged, never
// returned; a missing notification daemon must not stop the loop.
func NewDesktop(logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{
		show: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		logger: logger,
	}
}

// Notify implements panel.Notifier.
func (d *Desktop) Notify(ctx context.Context, n panel.Notification) {
	if err := d.show(n.Title, n.Description); err != nil {
		d.logger.Debug("desktop notification failed", "error", err)
	}
}

var _ panel.Notifier = (*Desktop)(nil)
