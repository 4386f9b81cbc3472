package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trendwatch/trendwatch-go/internal/app"
	"github.com/trendwatch/trendwatch-go/internal/config"
	"github.com/trendwatch/trendwatch-go/internal/util"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Trend detection worker starting...",
		zap.String("log_level", cfg.Logging.Level),
		zap.String("cron", cfg.Detector.CronSpec),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		os.Exit(1)
	}
	defer container.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Detector.Start(ctx); err != nil {
		logger.Error("Failed to start detector", zap.Error(err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Worker started, waiting for signals...")

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("Shutting down gracefully...")
	cancel()
	container.Detector.Stop()

	logger.Info("Shutdown complete")
}
