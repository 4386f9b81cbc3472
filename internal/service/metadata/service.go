package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/trendwatch/trendwatch-go/internal/constants"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/service/viewstats"
	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
)

// Data sources recorded in ChannelAggregate.Source.
const (
	SourceAnalytics = "viewstats"
	SourcePrimary   = "youtube"
	SourceDatabase  = "database"
)

// ChannelProvider is the primary-provider surface the service needs.
// Satisfied by youtube.Client.
type ChannelProvider interface {
	GetChannelDetails(ctx context.Context, channelID string) (*domain.TrackedChannel, error)
	GetChannelByHandle(ctx context.Context, handle string) (*domain.TrackedChannel, error)
}

// AnalyticsProvider is the secondary-provider surface. Satisfied by
// viewstats.Client.
type AnalyticsProvider interface {
	Enabled() bool
	GetChannelStats(ctx context.Context, handle, timeframe string) (*viewstats.ChannelStats, error)
}

type ChannelStore interface {
	Upsert(ctx context.Context, ch *domain.TrackedChannel) error
	GetByIDs(ctx context.Context, channelIDs []string) (map[string]*domain.TrackedChannel, error)
}

type VideoStore interface {
	ListRecentByChannels(ctx context.Context, channelIDs []string, since time.Time) ([]*domain.TrackedVideo, error)
}

// Cache is the slice of cache.CacheService the aggregates use.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Service aggregates per-channel metadata and timeframe statistics from
// whichever source can serve them: the analytics provider when a handle is
// known, the primary API otherwise, and the local database as a last resort
// when every upstream is unavailable. Each aggregate records which source
// actually produced it.
type Service struct {
	primary     ChannelProvider
	analytics   AnalyticsProvider
	cache       Cache
	channels    ChannelStore
	videos      VideoStore
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func NewService(primary ChannelProvider, analytics AnalyticsProvider, cacheSvc Cache, channels ChannelStore, videos VideoStore, logger *zap.Logger) *Service {
	return &Service{
		primary:     primary,
		analytics:   analytics,
		cache:       cacheSvc,
		channels:    channels,
		videos:      videos,
		logger:      logger,
		concurrency: 4,
		now:         time.Now,
	}
}

// Request names channels either by id or by handle; both lists may be set.
type Request struct {
	ChannelIDs   []string
	Handles      []string
	Timeframe    string
	ForceRefresh bool
}

// GetAggregatedChannelData resolves every requested channel concurrently and
// returns one aggregate per channel. Per-channel failures never fail the
// batch; they surface in the aggregate's Error field.
func (s *Service) GetAggregatedChannelData(ctx context.Context, req Request) ([]*domain.ChannelAggregate, error) {
	timeframe := normalizeTimeframe(req.Timeframe)

	type target struct {
		channelID string
		handle    string
	}
	targets := make([]target, 0, len(req.ChannelIDs)+len(req.Handles))
	for _, id := range req.ChannelIDs {
		targets = append(targets, target{channelID: id})
	}
	for _, h := range req.Handles {
		targets = append(targets, target{handle: strings.TrimPrefix(strings.ToLower(h), "@")})
	}
	if len(targets) == 0 {
		return nil, nil
	}

	known, err := s.channels.GetByIDs(ctx, req.ChannelIDs)
	if err != nil {
		s.logger.Warn("Channel preload failed, resolving individually", zap.Error(err))
		known = map[string]*domain.TrackedChannel{}
	}

	results := make([]*domain.ChannelAggregate, len(targets))
	p := pool.New().WithMaxGoroutines(s.concurrency)

	for idx, tgt := range targets {
		idx, tgt := idx, tgt
		p.Go(func() {
			results[idx] = s.aggregateOne(ctx, known[tgt.channelID], tgt.channelID, tgt.handle, timeframe, req.ForceRefresh)
		})
	}
	p.Wait()

	return results, nil
}

func (s *Service) aggregateOne(ctx context.Context, row *domain.TrackedChannel, channelID, handle, timeframe string, forceRefresh bool) *domain.ChannelAggregate {
	cacheKey := aggregateCacheKey(channelID, handle, timeframe)

	if !forceRefresh {
		var cached domain.ChannelAggregate
		if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return &cached
		}
	}

	channel, source, channelErr := s.resolveChannel(ctx, row, channelID, handle)
	if channel == nil {
		return &domain.ChannelAggregate{
			ChannelID: channelID,
			Timeframe: timeframe,
			Source:    source,
			Error:     errString(channelErr),
		}
	}

	agg := &domain.ChannelAggregate{
		ChannelID:         channel.ChannelID,
		Name:              channel.Title,
		ThumbnailURL:      channel.ThumbnailURL,
		SubscriberCount:   channel.SubscriberCount,
		UploadsPlaylistID: channel.UploadsPlaylistID,
		Timeframe:         timeframe,
		Source:            source,
	}
	if channelErr != nil {
		agg.Error = errString(channelErr)
	}

	s.fillStats(ctx, agg, channel, timeframe)

	if err := s.cache.Set(ctx, cacheKey, agg, constants.AggregateCacheTTL); err != nil {
		s.logger.Debug("Aggregate cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	return agg
}

// resolveChannel produces the freshest channel row it can, preferring the
// primary provider when the stored row is stale and falling back to the
// stored row when the provider is out of keys.
func (s *Service) resolveChannel(ctx context.Context, row *domain.TrackedChannel, channelID, handle string) (*domain.TrackedChannel, string, error) {
	if row != nil && !row.Stale(s.now(), constants.ChannelStaleAfter) {
		return row, SourceDatabase, nil
	}

	var (
		fresh *domain.TrackedChannel
		err   error
	)
	switch {
	case channelID != "":
		fresh, err = s.primary.GetChannelDetails(ctx, channelID)
	case handle != "":
		fresh, err = s.primary.GetChannelByHandle(ctx, handle)
	default:
		return nil, SourceDatabase, fmt.Errorf("neither channel id nor handle given")
	}

	if err == nil {
		if handle != "" && fresh.Handle == "" {
			fresh.Handle = handle
		}
		if upsertErr := s.channels.Upsert(ctx, fresh); upsertErr != nil {
			s.logger.Warn("Channel upsert failed",
				zap.String("channel_id", fresh.ChannelID), zap.Error(upsertErr))
		}
		return fresh, SourcePrimary, nil
	}

	var rotationErr *apperrors.KeyRotationError
	if errors.As(err, &rotationErr) && row != nil {
		// Out of keys for the day. Serve the stale row with attribution so
		// callers can see the data is not fresh.
		s.logger.Warn("Primary provider exhausted, serving stored channel data",
			zap.String("channel_id", row.ChannelID))
		return row, SourceDatabase, err
	}
	return row, SourceDatabase, err
}

// fillStats computes the timeframe statistics, preferring the analytics
// provider when the channel has a known handle.
func (s *Service) fillStats(ctx context.Context, agg *domain.ChannelAggregate, channel *domain.TrackedChannel, timeframe string) {
	if s.analytics != nil && s.analytics.Enabled() && channel.Handle != "" {
		stats, err := s.analytics.GetChannelStats(ctx, channel.Handle, timeframe)
		if err == nil {
			agg.Source = SourceAnalytics
			if stats.SubscriberCount > 0 {
				agg.SubscriberCount = stats.SubscriberCount
			}
			if timeframe == domain.TimeframeAllTime {
				agg.TotalViews = stats.TotalViews
			} else {
				agg.TotalViews = stats.ViewsDelta
			}
			s.fillVideoCounters(ctx, agg, channel, timeframe, false)
			return
		}
		s.logger.Debug("Analytics provider unavailable, using stored video stats",
			zap.String("handle", channel.Handle), zap.Error(err))
	}

	if timeframe == domain.TimeframeAllTime {
		agg.TotalViews = channel.ViewCount
		agg.VideosPublished = int(channel.VideoCount)
		if channel.VideoCount > 0 {
			agg.AvgViews = channel.ViewCount / channel.VideoCount
		}
		return
	}

	s.fillVideoCounters(ctx, agg, channel, timeframe, true)
}

// fillVideoCounters aggregates stored per-video statistics over the
// timeframe window. When includeViews is false the view total has already
// been set from the analytics provider and only the engagement counters are
// derived here.
func (s *Service) fillVideoCounters(ctx context.Context, agg *domain.ChannelAggregate, channel *domain.TrackedChannel, timeframe string, includeViews bool) {
	since := s.now().Add(-timeframeWindow(timeframe))
	videos, err := s.videos.ListRecentByChannels(ctx, []string{channel.ChannelID}, since)
	if err != nil {
		s.logger.Warn("Video stats lookup failed",
			zap.String("channel_id", channel.ChannelID), zap.Error(err))
		if agg.Error == "" {
			agg.Error = err.Error()
		}
		return
	}

	var views, likes, comments int64
	for _, v := range videos {
		views += v.LatestViewCount
		likes += v.LatestLikeCount
		comments += v.LatestCommentCount
	}

	agg.VideosPublished = len(videos)
	agg.TotalLikes = likes
	agg.TotalComments = comments
	if includeViews {
		agg.TotalViews = views
	}
	if len(videos) > 0 && includeViews {
		agg.AvgViews = views / int64(len(videos))
	}
	if views > 0 {
		agg.EngagementRate = float64(likes+comments) / float64(views)
	}
}

func normalizeTimeframe(timeframe string) string {
	switch timeframe {
	case domain.TimeframeLast24Hours, domain.TimeframeLast7Days,
		domain.TimeframeLast30Days, domain.TimeframeAllTime:
		return timeframe
	default:
		return domain.TimeframeLast7Days
	}
}

func timeframeWindow(timeframe string) time.Duration {
	switch timeframe {
	case domain.TimeframeLast24Hours:
		return 24 * time.Hour
	case domain.TimeframeLast30Days:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

func aggregateCacheKey(channelID, handle, timeframe string) string {
	ref := channelID
	if ref == "" {
		ref = "@" + handle
	}
	return fmt.Sprintf("trendwatch:aggregate:%s:%s", ref, timeframe)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
