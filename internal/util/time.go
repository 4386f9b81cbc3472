package util

import (
	"fmt"
	"time"
)

// The reference timezone for all day-boundary logic. The primary provider
// resets its quotas at midnight Pacific, so key counters follow the same
// calendar regardless of server or user locale.
var pacificLocation *time.Location

func init() {
	var err error
	pacificLocation, err = time.LoadLocation("America/Los_Angeles")
	if err != nil {
		pacificLocation = time.FixedZone("PST", -8*60*60)
	}
}

func ToPacific(t time.Time) time.Time {
	return t.In(pacificLocation)
}

// PacificDateString formats t as YYYY-MM-DD in the reference timezone.
// Two timestamps with different results are on different quota days.
func PacificDateString(t time.Time) string {
	return t.In(pacificLocation).Format("2006-01-02")
}

// CoarseTimeAgo renders a human-relative duration the way notification
// templates expect: "42m ago", "3h ago", "2d ago".
func CoarseTimeAgo(from, now time.Time) string {
	if from.IsZero() || now.Before(from) {
		return "recently"
	}
	mins := int(now.Sub(from).Minutes())
	switch {
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case mins < 24*60:
		return fmt.Sprintf("%dh ago", mins/60)
	default:
		return fmt.Sprintf("%dd ago", mins/(24*60))
	}
}
