package trend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/constants"
	"github.com/trendwatch/trendwatch-go/internal/domain"
	"github.com/trendwatch/trendwatch-go/internal/util"
	apperrors "github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
)

const (
	runLockName      = "trend-detector-run"
	fetchConcurrency = 3
)

// VideoSource provides fresh per-channel video statistics. Satisfied by
// youtube.Client.
type VideoSource interface {
	GetRecentVideos(ctx context.Context, channelID string, publishedAfter time.Time) ([]*domain.VideoDetails, error)
}

type UserStore interface {
	ListAlertEligible(ctx context.Context) ([]*domain.User, error)
}

type VideoStore interface {
	UpsertBatch(ctx context.Context, videos []*domain.TrackedVideo) error
	ListRecentByChannels(ctx context.Context, channelIDs []string, since time.Time) ([]*domain.TrackedVideo, error)
}

type AlertStore interface {
	Insert(ctx context.Context, alert *domain.TriggeredAlert) error
}

type SnapshotStore interface {
	Insert(ctx context.Context, snap *domain.VideoStatsSnapshot) error
}

// AlertSender delivers one alert and reports the terminal status. Satisfied
// by notify.Dispatcher.
type AlertSender interface {
	SendTrendAlert(ctx context.Context, user *domain.User, alert *domain.TriggeredAlert) (string, error)
}

// RunCache is the slice of cache.CacheService the detector uses: the
// overlapping-run lock and the per-alert cooldown keys.
type RunCache interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
	MarkCooldown(ctx context.Context, key string, window time.Duration) error
	InCooldown(ctx context.Context, key string) bool
}

// Detector runs the detection sweep: load eligible users, fetch fresh
// statistics for every channel any rule group references, evaluate each
// video against each group, and hand matches to the dispatcher. A Redis
// lock skips a sweep while the previous one is still running.
type Detector struct {
	users      UserStore
	source     VideoSource
	videos     VideoStore
	alerts     AlertStore
	snapshots  SnapshotStore
	dispatcher AlertSender
	cache      RunCache
	cfg        config.DetectorConfig
	logger     *zap.Logger
	cron       *cron.Cron
	now        func() time.Time
}

func NewDetector(
	users UserStore,
	source VideoSource,
	videos VideoStore,
	alerts AlertStore,
	snapshots SnapshotStore,
	dispatcher AlertSender,
	runCache RunCache,
	cfg config.DetectorConfig,
	logger *zap.Logger,
) *Detector {
	return &Detector{
		users:      users,
		source:     source,
		videos:     videos,
		alerts:     alerts,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		cache:      runCache,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Start schedules periodic sweeps. The cron spec comes from configuration;
// the default fires every five minutes.
func (d *Detector) Start(ctx context.Context) error {
	d.cron = cron.New()
	_, err := d.cron.AddFunc(d.cfg.CronSpec, func() {
		if err := d.RunOnce(ctx); err != nil {
			d.logger.Error("Detection sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return apperrors.NewServiceError("invalid detector cron spec", "detector", "start", err)
	}

	d.cron.Start()
	d.logger.Info("Trend detector scheduled", zap.String("cron", d.cfg.CronSpec))

	if d.cfg.RunOnStart {
		go func() {
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("Initial detection sweep failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (d *Detector) Stop() {
	if d.cron == nil {
		return
	}
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.logger.Info("Trend detector stopped")
}

type runStats struct {
	users    int
	skipped  int
	channels int
	videos   int
	matched  int
	deduped  int
	alerts   int
}

// RunOnce performs one full detection sweep. It is safe to call directly;
// the run lock makes overlapping invocations no-ops.
func (d *Detector) RunOnce(ctx context.Context) error {
	acquired, err := d.cache.AcquireLock(ctx, runLockName, d.cfg.RunLockTTL)
	if err != nil {
		// Redis being down must not stop detection; worst case two sweeps
		// overlap and the alert cooldown absorbs the duplicates.
		d.logger.Warn("Run lock unavailable, proceeding without it", zap.Error(err))
	} else if !acquired {
		d.logger.Info("Previous detection sweep still running, skipping")
		return nil
	}
	if acquired {
		defer func() {
			if err := d.cache.ReleaseLock(ctx, runLockName); err != nil {
				d.logger.Warn("Run lock release failed", zap.Error(err))
			}
		}()
	}

	started := d.now()
	users, err := d.users.ListAlertEligible(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		d.logger.Debug("No alert-eligible users")
		return nil
	}

	plan := d.buildPlan(users)
	videosByChannel := d.fetchChannels(ctx, plan.channelIDs, plan.earliestCutoff)

	stats := runStats{users: len(users), channels: len(plan.channelIDs)}
	for _, v := range videosByChannel {
		stats.videos += len(v)
	}

	for _, pu := range plan.users {
		d.evaluateUser(ctx, pu, videosByChannel, &stats)
	}

	d.logger.Info("Detection sweep finished",
		zap.Duration("took", d.now().Sub(started)),
		zap.Int("users", stats.users),
		zap.Int("users_skipped", stats.skipped),
		zap.Int("channels", stats.channels),
		zap.Int("videos", stats.videos),
		zap.Int("matches", stats.matched),
		zap.Int("deduped", stats.deduped),
		zap.Int("alerts", stats.alerts),
	)
	return nil
}

// defaultLookback is the window for users with no per-user setting,
// configurable via DETECTOR_LOOKBACK_HOURS.
func (d *Detector) defaultLookback() time.Duration {
	if d.cfg.LookbackHours > 0 {
		return time.Duration(d.cfg.LookbackHours) * time.Hour
	}
	return constants.DefaultLookback
}

type plannedUser struct {
	user   *domain.User
	groups []domain.RuleGroup
	cutoff time.Time
}

type sweepPlan struct {
	users          []plannedUser
	channelIDs     []string
	earliestCutoff time.Time
}

// buildPlan parses every user's rule groups and collects the union of
// channels to fetch. Users with malformed rule JSON are skipped and logged;
// one bad row must not stall everyone else's alerts.
func (d *Detector) buildPlan(users []*domain.User) sweepPlan {
	now := d.now()
	plan := sweepPlan{earliestCutoff: now}
	var channels []string

	for _, user := range users {
		groups, err := domain.ParseRuleGroups(user.RuleGroupsJSON)
		if err != nil {
			d.logger.Warn("Skipping user with malformed rule groups",
				zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		if len(groups) == 0 {
			continue
		}

		lookback := d.defaultLookback()
		if user.LookbackHours > 0 {
			lookback = time.Duration(user.LookbackHours) * time.Hour
		}
		cutoff := now.Add(-lookback)
		if cutoff.Before(plan.earliestCutoff) {
			plan.earliestCutoff = cutoff
		}

		for _, g := range groups {
			channels = append(channels, g.Channels...)
		}

		plan.users = append(plan.users, plannedUser{user: user, groups: groups, cutoff: cutoff})
	}

	plan.channelIDs = util.UniqueStrings(channels)
	return plan
}

// fetchChannels pulls fresh statistics for every channel once per sweep,
// bounded by a small worker pool. A channel whose fetch fails falls back to
// its stored videos so evaluation still sees last known numbers.
func (d *Detector) fetchChannels(ctx context.Context, channelIDs []string, cutoff time.Time) map[string][]*domain.VideoDetails {
	results := make(map[string][]*domain.VideoDetails, len(channelIDs))
	var mu sync.Mutex
	var exhausted bool

	p := pool.New().WithMaxGoroutines(fetchConcurrency)
	for _, channelID := range channelIDs {
		channelID := channelID
		p.Go(func() {
			mu.Lock()
			stop := exhausted
			mu.Unlock()

			var fresh []*domain.VideoDetails
			var err error
			if !stop {
				fresh, err = d.source.GetRecentVideos(ctx, channelID, cutoff)
			}

			if err == nil && !stop {
				mu.Lock()
				results[channelID] = fresh
				mu.Unlock()
				d.persistVideos(ctx, fresh)
				return
			}

			if err != nil {
				var rotationErr *apperrors.KeyRotationError
				if errors.As(err, &rotationErr) {
					mu.Lock()
					exhausted = true
					mu.Unlock()
				}
				d.logger.Warn("Channel fetch failed, using stored videos",
					zap.String("channel_id", channelID), zap.Error(err))
			}

			stored, storeErr := d.videos.ListRecentByChannels(ctx, []string{channelID}, cutoff)
			if storeErr != nil {
				d.logger.Error("Stored video fallback failed",
					zap.String("channel_id", channelID), zap.Error(storeErr))
				return
			}
			details := make([]*domain.VideoDetails, 0, len(stored))
			for _, v := range stored {
				details = append(details, &domain.VideoDetails{TrackedVideo: *v})
			}
			mu.Lock()
			results[channelID] = details
			mu.Unlock()
		})
	}
	p.Wait()

	return results
}

func (d *Detector) persistVideos(ctx context.Context, videos []*domain.VideoDetails) {
	if len(videos) == 0 {
		return
	}
	rows := make([]*domain.TrackedVideo, 0, len(videos))
	for _, v := range videos {
		row := v.TrackedVideo
		rows = append(rows, &row)
	}
	if err := d.videos.UpsertBatch(ctx, rows); err != nil {
		d.logger.Warn("Video upsert failed", zap.Int("videos", len(rows)), zap.Error(err))
	}
}

// evaluateUser runs every group of one user over the fetched videos and
// dispatches alerts for new matches.
func (d *Detector) evaluateUser(ctx context.Context, pu plannedUser, videosByChannel map[string][]*domain.VideoDetails, stats *runStats) {
	for _, group := range pu.groups {
		if group.Params.Empty() {
			continue
		}
		for _, channelID := range group.Channels {
			for _, video := range videosByChannel[channelID] {
				matched, ok := Evaluate(&video.TrackedVideo, group.Params, pu.cutoff)
				if !ok {
					continue
				}
				stats.matched++

				dedupKey := pu.user.ID + ":" + group.ID + ":" + video.VideoID
				if d.cache.InCooldown(ctx, dedupKey) {
					stats.deduped++
					continue
				}

				alert := d.buildAlert(pu.user, group, video, matched)
				if err := d.alerts.Insert(ctx, alert); err != nil {
					d.logger.Error("Alert insert failed",
						zap.String("user_id", pu.user.ID),
						zap.String("video_id", video.VideoID),
						zap.Error(err))
					continue
				}
				stats.alerts++

				if err := d.cache.MarkCooldown(ctx, dedupKey, d.cfg.AlertCooldown); err != nil {
					d.logger.Warn("Cooldown mark failed", zap.String("key", dedupKey), zap.Error(err))
				}

				d.recordSnapshot(ctx, video)

				if _, err := d.dispatcher.SendTrendAlert(ctx, pu.user, alert); err != nil {
					d.logger.Error("Alert dispatch failed",
						zap.Int64("alert_id", alert.ID), zap.Error(err))
				}
			}
		}
	}
}

func (d *Detector) buildAlert(user *domain.User, group domain.RuleGroup, video *domain.VideoDetails, matched domain.MatchedParams) *domain.TriggeredAlert {
	return &domain.TriggeredAlert{
		UserID:            user.ID,
		VideoID:           video.VideoID,
		VideoTitle:        video.Title,
		ChannelID:         video.ChannelID,
		ChannelName:       video.ChannelTitle,
		ThumbnailURL:      video.ThumbnailURL,
		GroupID:           group.ID,
		GroupName:         group.Name,
		ParametersMatched: matched,
		ViewsAtTrigger:    video.LatestViewCount,
		LikesAtTrigger:    video.LatestLikeCount,
		CommentsAtTrigger: video.LatestCommentCount,
		PublishedAt:       video.PublishedAt,
		TriggeredAt:       d.now(),
		Status:            domain.AlertStatusPending,
	}
}

func (d *Detector) recordSnapshot(ctx context.Context, video *domain.VideoDetails) {
	snap := &domain.VideoStatsSnapshot{
		VideoID:      video.VideoID,
		CheckedAt:    d.now(),
		ViewCount:    video.LatestViewCount,
		LikeCount:    video.LatestLikeCount,
		CommentCount: video.LatestCommentCount,
	}
	if err := d.snapshots.Insert(ctx, snap); err != nil {
		// History is best effort; the alert itself already captured the
		// trigger-time numbers.
		d.logger.Warn("Snapshot insert failed",
			zap.String("video_id", video.VideoID), zap.Error(err))
	}
}
