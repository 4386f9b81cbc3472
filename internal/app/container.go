package app

import (
	"context"
	"fmt"

	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/service/cache"
	"github.com/trendwatch/trendwatch-go/internal/service/keypool"
	"github.com/trendwatch/trendwatch-go/internal/service/metadata"
	"github.com/trendwatch/trendwatch-go/internal/service/notify"
	"github.com/trendwatch/trendwatch-go/internal/service/trend"
	"github.com/trendwatch/trendwatch-go/internal/service/viewstats"
	"github.com/trendwatch/trendwatch-go/internal/service/youtube"
	"github.com/trendwatch/trendwatch-go/internal/store"
	"go.uber.org/zap"
)

// Container holds the assembled service graph. The detector drives the
// pipeline; Metadata is exposed for callers that serve aggregate queries.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Detector *trend.Detector
	Metadata *metadata.Service
	KeyPool  *keypool.KeyPool

	closers []func()
}

// Close tears the infrastructure down in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build assembles every service. All heavy-weight initialization (DB, cache,
// notification transports) happens here; on any failure the already-built
// pieces are closed again before returning.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	cacheSvc, err := cache.NewCacheService(cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache service: %w", err)
	}
	closers = append(closers, func() {
		_ = cacheSvc.Close()
	})

	postgresSvc, err := store.NewPostgresService(store.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres service: %w", err)
	}
	closers = append(closers, func() {
		_ = postgresSvc.Close()
	})

	// Repositories
	keyStatusRepo := store.NewKeyStatusRepository(postgresSvc, logger)
	channelRepo := store.NewChannelRepository(postgresSvc, logger)
	videoRepo := store.NewVideoRepository(postgresSvc, logger)
	userRepo := store.NewUserRepository(postgresSvc, logger)
	alertRepo := store.NewAlertRepository(postgresSvc, logger)
	snapshotRepo := store.NewSnapshotRepository(postgresSvc, logger)

	// Upstream providers
	keyPool := keypool.NewKeyPool(cfg.YouTube.Keys, keyStatusRepo, logger)
	youtubeClient := youtube.NewClient(keyPool, logger)
	viewstatsClient := viewstats.NewClient(cfg.ViewStats, logger)

	metadataSvc := metadata.NewService(youtubeClient, viewstatsClient, cacheSvc, channelRepo, videoRepo, logger)

	// Notification transports. Each channel is optional; an unconfigured
	// transport stays nil and the dispatcher simply never attempts it.
	var emailSender notify.EmailSender
	if cfg.SMTP.Host != "" {
		emailSender = notify.NewSMTPSender(cfg.SMTP, logger)
		logger.Info("Email notifications enabled", zap.String("host", cfg.SMTP.Host))
	}

	var telegramSender notify.TelegramSender
	if cfg.Telegram.BotToken != "" {
		telegramSender, err = notify.NewTelegramBotSender(cfg.Telegram.BotToken, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Telegram sender: %w", err)
		}
	}

	var discordSender notify.DiscordSender
	if cfg.Discord.BotToken != "" {
		discordBot, derr := notify.NewDiscordBotSender(cfg.Discord.BotToken, logger)
		if derr != nil {
			return nil, fmt.Errorf("failed to create Discord sender: %w", derr)
		}
		discordSender = discordBot
		closers = append(closers, func() {
			_ = discordBot.Close()
		})
	}

	dispatcher := notify.NewDispatcher(emailSender, telegramSender, discordSender, alertRepo, logger)

	detector := trend.NewDetector(
		userRepo,
		youtubeClient,
		videoRepo,
		alertRepo,
		snapshotRepo,
		dispatcher,
		cacheSvc,
		cfg.Detector,
		logger,
	)

	logger.Info("Application services assembled",
		zap.Int("api_keys", len(cfg.YouTube.Keys)),
		zap.Bool("analytics_fallback", viewstatsClient.Enabled()),
		zap.Bool("email", emailSender != nil),
		zap.Bool("telegram", telegramSender != nil),
		zap.Bool("discord", discordSender != nil),
	)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Detector: detector,
		Metadata: metadataSvc,
		KeyPool:  keyPool,
		closers:  closers,
	}, nil
}
