package domain

// Aggregation timeframes accepted by the metadata service.
const (
	TimeframeLast24Hours = "last_24_hours"
	TimeframeLast7Days   = "last_7_days"
	TimeframeLast30Days  = "last_30_days"
	TimeframeAllTime     = "all_time"
)

// ChannelAggregate is the per-channel result of an aggregated data request:
// current channel metadata plus video statistics over the timeframe, with
// attribution of which source actually served each part.
type ChannelAggregate struct {
	ChannelID         string  `json:"channel_id"`
	Name              string  `json:"name"`
	ThumbnailURL      string  `json:"thumbnail_url,omitempty"`
	SubscriberCount   int64   `json:"subscriber_count"`
	UploadsPlaylistID string  `json:"uploads_playlist_id,omitempty"`
	TotalViews        int64   `json:"total_views"`
	TotalLikes        int64   `json:"total_likes"`
	TotalComments     int64   `json:"total_comments"`
	VideosPublished   int     `json:"videos_published"`
	AvgViews          int64   `json:"avg_views"`
	EngagementRate    float64 `json:"engagement_rate"`
	Timeframe         string  `json:"timeframe"`
	Source            string  `json:"source"`
	Error             string  `json:"error,omitempty"`
}
