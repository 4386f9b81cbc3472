package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/constants"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/service/keypool"
	"github.com/trendwatch/trendwatch-go/internal/util"
	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Client wraps the YouTube Data API behind the rotating key pool. Every call
// borrows the next available key; a key-attributable failure marks the key
// and the call retries on the following one until the pool is exhausted.
type Client struct {
	keys   *keypool.KeyPool
	logger *zap.Logger
}

func NewClient(keys *keypool.KeyPool, logger *zap.Logger) *Client {
	return &Client{
		keys:   keys,
		logger: logger,
	}
}

// withService runs fn with a service bound to the next usable key, rotating
// on quota and key errors.
func (c *Client) withService(ctx context.Context, fn func(*youtube.Service) error) error {
	for {
		secret, ok := c.keys.GetKey(ctx)
		if !ok {
			return apperrors.NewKeyRotationError("all YouTube API keys exhausted", 429, nil)
		}

		svc, err := youtube.NewService(ctx, option.WithAPIKey(secret))
		if err != nil {
			return apperrors.NewServiceError("failed to create YouTube service", "youtube", "init", err)
		}

		err = fn(svc)
		if err == nil {
			return nil
		}

		if isKeyError(err) {
			c.keys.ReportFailure(ctx, secret)
			c.logger.Warn("YouTube key rejected, rotating to next key", zap.Error(err))
			continue
		}

		return err
	}
}

// isKeyError reports whether the error should burn the current key rather
// than fail the request outright.
func isKeyError(err error) bool {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return false
	}
	if apiErr.Code == 429 {
		return true
	}
	if apiErr.Code != 403 {
		return false
	}
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded",
			"keyInvalid", "accessNotConfigured", "disabled", "forbidden":
			return true
		}
	}
	// A bare 403 with no machine-readable reason is still almost always a
	// quota or key problem on this API.
	return len(apiErr.Errors) == 0
}

// ResolveChannel finds the best channel match for a free-form query and
// returns its full details.
func (c *Client) ResolveChannel(ctx context.Context, query string) (*domain.TrackedChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.UpstreamTimeout)
	defer cancel()

	var channelID string
	err := c.withService(ctx, func(svc *youtube.Service) error {
		resp, err := svc.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].Id == nil {
			return apperrors.NewNotFoundError(fmt.Sprintf("no channel matches %q", query), "channel")
		}
		channelID = resp.Items[0].Id.ChannelId
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.GetChannelDetails(ctx, channelID)
}

// GetChannelDetails fetches metadata and lifetime statistics for one channel.
func (c *Client) GetChannelDetails(ctx context.Context, channelID string) (*domain.TrackedChannel, error) {
	return c.fetchChannel(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
		return call.Id(channelID)
	}, channelID)
}

// GetChannelByHandle resolves an @handle directly, without spending a search
// call.
func (c *Client) GetChannelByHandle(ctx context.Context, handle string) (*domain.TrackedChannel, error) {
	return c.fetchChannel(ctx, func(call *youtube.ChannelsListCall) *youtube.ChannelsListCall {
		return call.ForHandle(handle)
	}, handle)
}

func (c *Client) fetchChannel(ctx context.Context, bind func(*youtube.ChannelsListCall) *youtube.ChannelsListCall, ref string) (*domain.TrackedChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.UpstreamTimeout)
	defer cancel()

	var channel *domain.TrackedChannel
	err := c.withService(ctx, func(svc *youtube.Service) error {
		call := bind(svc.Channels.List([]string{"snippet", "statistics", "contentDetails"}))
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("channel %s not found", ref), "channel")
		}
		channel = channelFromAPI(resp.Items[0])
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Channel details fetched",
		zap.String("channel_id", channel.ChannelID),
		zap.String("handle", channel.Handle),
		zap.Int64("subscribers", channel.SubscriberCount),
	)
	return channel, nil
}

// GetRecentVideos returns every video the channel published after the given
// instant, with full statistics. Search pages are capped, so a channel that
// uploads more than MaxSearchPages*MaxResultsPerPage videos inside the
// window is truncated to the newest ones.
func (c *Client) GetRecentVideos(ctx context.Context, channelID string, publishedAfter time.Time) ([]*domain.VideoDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.UpstreamTimeout)
	defer cancel()

	videoIDs, channelTitle, err := c.searchRecentVideoIDs(ctx, channelID, publishedAfter)
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	videos, err := c.getVideoDetails(ctx, videoIDs, channelTitle)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Recent videos fetched",
		zap.String("channel_id", channelID),
		zap.Int("ids", len(videoIDs)),
		zap.Int("details", len(videos)),
	)
	return videos, nil
}

func (c *Client) searchRecentVideoIDs(ctx context.Context, channelID string, publishedAfter time.Time) ([]string, string, error) {
	var (
		ids          []string
		channelTitle string
		pageToken    string
	)

	for page := 0; page < constants.MaxSearchPages; page++ {
		err := c.withService(ctx, func(svc *youtube.Service) error {
			call := svc.Search.List([]string{"snippet"}).
				ChannelId(channelID).
				Type("video").
				Order("date").
				MaxResults(constants.MaxResultsPerPage).
				PublishedAfter(publishedAfter.UTC().Format(time.RFC3339))
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			resp, err := call.Context(ctx).Do()
			if err != nil {
				return err
			}

			for _, item := range resp.Items {
				if item.Id == nil || item.Id.VideoId == "" {
					continue
				}
				ids = append(ids, item.Id.VideoId)
				if channelTitle == "" && item.Snippet != nil {
					channelTitle = item.Snippet.ChannelTitle
				}
			}
			pageToken = resp.NextPageToken
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		if pageToken == "" {
			break
		}
	}

	return ids, channelTitle, nil
}

func (c *Client) getVideoDetails(ctx context.Context, videoIDs []string, channelTitle string) ([]*domain.VideoDetails, error) {
	videos := make([]*domain.VideoDetails, 0, len(videoIDs))

	for i := 0; i < len(videoIDs); i += constants.VideoDetailsBatch {
		end := util.Min(i+constants.VideoDetailsBatch, len(videoIDs))
		batch := videoIDs[i:end]

		err := c.withService(ctx, func(svc *youtube.Service) error {
			resp, err := svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
				Id(batch...).
				Context(ctx).
				Do()
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				videos = append(videos, videoFromAPI(item, channelTitle))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return videos, nil
}

func channelFromAPI(ch *youtube.Channel) *domain.TrackedChannel {
	out := &domain.TrackedChannel{
		ChannelID:     ch.Id,
		LastFetchedAt: time.Now(),
	}
	if ch.Snippet != nil {
		out.Title = ch.Snippet.Title
		out.Handle = normalizeHandle(ch.Snippet.CustomUrl)
		out.Description = ch.Snippet.Description
		out.ThumbnailURL = bestThumbnail(ch.Snippet.Thumbnails)
		if t, err := time.Parse(time.RFC3339, ch.Snippet.PublishedAt); err == nil {
			out.PublishedAt = t
		}
	}
	if ch.Statistics != nil {
		out.SubscriberCount = int64(ch.Statistics.SubscriberCount)
		out.ViewCount = int64(ch.Statistics.ViewCount)
		out.VideoCount = int64(ch.Statistics.VideoCount)
	}
	if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
		out.UploadsPlaylistID = ch.ContentDetails.RelatedPlaylists.Uploads
	}
	return out
}

func videoFromAPI(v *youtube.Video, channelTitle string) *domain.VideoDetails {
	out := &domain.VideoDetails{ChannelTitle: channelTitle}
	out.VideoID = v.Id
	out.LastStatsUpdateAt = time.Now()

	if v.Snippet != nil {
		out.ChannelID = v.Snippet.ChannelId
		out.Title = v.Snippet.Title
		out.Description = v.Snippet.Description
		out.ThumbnailURL = bestThumbnail(v.Snippet.Thumbnails)
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			out.PublishedAt = t
		}
		if out.ChannelTitle == "" {
			out.ChannelTitle = v.Snippet.ChannelTitle
		}
	}
	if v.ContentDetails != nil {
		out.DurationSeconds = parseISODuration(v.ContentDetails.Duration)
		out.IsShort = out.DurationSeconds > 0 && out.DurationSeconds <= constants.ShortMaxDurationSec
	}
	if v.Statistics != nil {
		out.LatestViewCount = int64(v.Statistics.ViewCount)
		out.LatestLikeCount = int64(v.Statistics.LikeCount)
		out.LatestCommentCount = int64(v.Statistics.CommentCount)
	}
	return out
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	switch {
	case t.Maxres != nil && t.Maxres.Url != "":
		return t.Maxres.Url
	case t.High != nil && t.High.Url != "":
		return t.High.Url
	case t.Medium != nil && t.Medium.Url != "":
		return t.Medium.Url
	case t.Default != nil && t.Default.Url != "":
		return t.Default.Url
	}
	return ""
}

func normalizeHandle(customURL string) string {
	h := strings.TrimPrefix(strings.TrimSpace(customURL), "@")
	return strings.ToLower(h)
}

// parseISODuration converts the API's ISO 8601 duration (PT#H#M#S, with an
// optional P#D prefix for very long videos) to seconds. Malformed input
// yields zero.
func parseISODuration(s string) int64 {
	if !strings.HasPrefix(s, "P") {
		return 0
	}
	var total, n int64
	inTime := false
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int64(r-'0')
		case r == 'T':
			inTime = true
			n = 0
		case r == 'D':
			total += n * 86400
			n = 0
		case r == 'H' && inTime:
			total += n * 3600
			n = 0
		case r == 'M' && inTime:
			total += n * 60
			n = 0
		case r == 'S' && inTime:
			total += n
			n = 0
		default:
			return 0
		}
	}
	return total
}
