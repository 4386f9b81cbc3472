package util

import (
	"testing"
	"time"
)

func TestPacificDateString(t *testing.T) {
	// 06:30 UTC on June 2nd is still June 1st in Los Angeles (UTC-7 in DST).
	beforeMidnight := time.Date(2025, 6, 2, 6, 30, 0, 0, time.UTC)
	if got := PacificDateString(beforeMidnight); got != "2025-06-01" {
		t.Errorf("got %q, want 2025-06-01", got)
	}

	afterMidnight := time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)
	if got := PacificDateString(afterMidnight); got != "2025-06-02" {
		t.Errorf("got %q, want 2025-06-02", got)
	}
}

func TestCoarseTimeAgo(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		from time.Time
		want string
	}{
		{now.Add(-42 * time.Minute), "42m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
		{now.Add(time.Minute), "recently"},
		{time.Time{}, "recently"},
	}
	for _, c := range cases {
		if got := CoarseTimeAgo(c.from, now); got != c.want {
			t.Errorf("CoarseTimeAgo(%v) = %q, want %q", c.from, got, c.want)
		}
	}
}
