package domain

import "time"

// TrackedChannel mirrors the channels table: the latest known metadata for a
// YouTube channel any user tracks. Rows are upserted on every successful
// primary-provider fetch and never deleted here.
type TrackedChannel struct {
	ChannelID         string
	Title             string
	Handle            string // canonical @handle, used by the analytics fallback
	Description       string
	ThumbnailURL      string
	SubscriberCount   int64
	ViewCount         int64
	VideoCount        int64
	UploadsPlaylistID string
	PublishedAt       time.Time
	LastFetchedAt     time.Time
}

// Stale reports whether the row is older than the staleness threshold and
// must be refreshed from the primary provider on next access.
func (c *TrackedChannel) Stale(now time.Time, maxAge time.Duration) bool {
	if c == nil || c.LastFetchedAt.IsZero() {
		return true
	}
	return now.Sub(c.LastFetchedAt) > maxAge
}
