package panel

import (
	"fmt"
	"math"
	"time"
)

// NotificationKind classifies a notification for sinks that style or filter them.
type NotificationKind string

const (
	// KindSuccess reports an invocation that returned no error.
	KindSuccess NotificationKind = "success"
	// KindError reports an invocation error next to the partial count.
	KindError NotificationKind = "error"
)

// Notification is the message emitted once per completed invocation.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Time        time.Time        `json:"time"`
}

// NotificationFor builds the message for an invocation outcome. When err is
// non-nil the error text is reported verbatim next to the achieved count and
// fraction is ignored.
func NotificationFor(count int, err error, fraction float64) Notification {
	if err != nil {
		return Notification{
			Kind:        KindError,
			Title:       "Simulation Error",
			Description: fmt.Sprintf("Updated %d active users. But got error: %s", count, err.Error()),
		}
	}
	return Notification{
		Kind:        KindSuccess,
		Title:       "Simulation Success",
		Description: fmt.Sprintf("%d active users simulated with %s users changing data", count, UsersChangingData(count, fraction)),
	}
}

// UsersChangingData returns floor(count * fraction) as displayed text.
// Invalid fractions are not corrected, so NaN input yields "NaN".
func UsersChangingData(count int, fraction float64) string {
	return formatNumber(math.Floor(float64(count) * fraction))
}
