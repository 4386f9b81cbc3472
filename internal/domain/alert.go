package domain

import "time"

// Alert lifecycle statuses. StatusPending is set on insert; the dispatcher
// writes exactly one terminal status afterwards.
const (
	AlertStatusPending   = "PENDING_NOTIFICATION"
	AlertStatusFailedAll = "NOTIFICATION_FAILED_ALL_ATTEMPTED"
	AlertStatusNoChannel = "NO_VERIFIED_CHANNELS"
)

// TriggeredAlert is created the moment a video first satisfies a rule group.
// Everything except Status and the notification log is immutable.
type TriggeredAlert struct {
	ID                int64
	UserID            string
	VideoID           string
	VideoTitle        string
	ChannelID         string
	ChannelName       string
	ThumbnailURL      string
	GroupID           string
	GroupName         string
	ParametersMatched MatchedParams
	ViewsAtTrigger    int64
	LikesAtTrigger    int64
	CommentsAtTrigger int64
	PublishedAt       time.Time
	TriggeredAt       time.Time
	Status            string
}

// DeliveryLogEntry records one notification-channel attempt.
type DeliveryLogEntry struct {
	Channel string    `json:"channel"`
	Status  string    `json:"status"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
