package domain

import "time"

// TrackedVideo is the latest known state of a video, keyed by its YouTube
// video id. Point-in-time only; history lives in VideoStatsSnapshot.
type TrackedVideo struct {
	VideoID            string
	ChannelID          string
	Title              string
	Description        string
	ThumbnailURL       string
	PublishedAt        time.Time
	DurationSeconds    int64
	IsShort            bool
	LatestViewCount    int64
	LatestLikeCount    int64
	LatestCommentCount int64
	LastStatsUpdateAt  time.Time
}

// ChannelTitle carried alongside the video when known; not persisted on the
// videos table but needed for alert denormalization and templates.
type VideoDetails struct {
	TrackedVideo
	ChannelTitle string
}

// VideoURL returns the public watch URL for the video.
func (v *TrackedVideo) VideoURL() string {
	return "https://www.youtube.com/watch?v=" + v.VideoID
}

// VideoStatsSnapshot is one append-only history row, written once per
// detected trigger.
type VideoStatsSnapshot struct {
	VideoID      string
	CheckedAt    time.Time
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
}
