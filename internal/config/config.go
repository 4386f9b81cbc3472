package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Postgres  PostgresConfig
	Redis     RedisConfig
	YouTube   YouTubeConfig
	ViewStats ViewStatsConfig
	SMTP      SMTPConfig
	Telegram  TelegramConfig
	Discord   DiscordConfig
	Detector  DetectorConfig
	Logging   LoggingConfig
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// YouTubeConfig carries the primary-provider key pool. Keys are collected
// from numbered env vars (YOUTUBE_API_KEY_1, _2, ...) so operators can grow
// the pool without code changes.
type YouTubeConfig struct {
	Keys []APIKey
}

type APIKey struct {
	Name   string
	Secret string
}

// ViewStatsConfig is the secondary analytics provider. Its responses are
// AES-GCM encrypted with fixed key material; both halves arrive hex-encoded
// in the environment.
type ViewStatsConfig struct {
	BaseURL     string
	BearerToken string
	DecryptKey  []byte
	DecryptIV   []byte
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type TelegramConfig struct {
	BotToken string
}

type DiscordConfig struct {
	BotToken string
}

type DetectorConfig struct {
	CronSpec      string
	LookbackHours int
	AlertCooldown time.Duration
	RunLockTTL    time.Duration
	RunOnStart    bool
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	viewStatsKey, err := hexEnv("VIEWSTATS_DECRYPT_KEY")
	if err != nil {
		return nil, err
	}
	viewStatsIV, err := hexEnv("VIEWSTATS_DECRYPT_IV")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "trendwatch"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "trendwatch"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		YouTube: YouTubeConfig{
			Keys: collectAPIKeys("YOUTUBE_API_KEY_"),
		},
		ViewStats: ViewStatsConfig{
			BaseURL:     getEnv("VIEWSTATS_BASE_URL", "https://api.viewstats.com"),
			BearerToken: getEnv("VIEWSTATS_BEARER_TOKEN", ""),
			DecryptKey:  viewStatsKey,
			DecryptIV:   viewStatsIV,
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Discord: DiscordConfig{
			BotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		},
		Detector: DetectorConfig{
			CronSpec:      getEnv("DETECTOR_CRON", "*/5 * * * *"),
			LookbackHours: getEnvInt("DETECTOR_LOOKBACK_HOURS", 24),
			AlertCooldown: time.Duration(getEnvInt("ALERT_COOLDOWN_HOURS", 6)) * time.Hour,
			RunLockTTL:    time.Duration(getEnvInt("RUN_LOCK_TTL_MINUTES", 10)) * time.Minute,
			RunOnStart:    getEnvBool("DETECTOR_RUN_ON_START", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.YouTube.Keys) == 0 {
		return fmt.Errorf("at least one YOUTUBE_API_KEY_n is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.ViewStats.BearerToken != "" {
		if len(c.ViewStats.DecryptKey) == 0 || len(c.ViewStats.DecryptIV) == 0 {
			return fmt.Errorf("VIEWSTATS_DECRYPT_KEY and VIEWSTATS_DECRYPT_IV are required when VIEWSTATS_BEARER_TOKEN is set")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func hexEnv(key string) ([]byte, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", key, err)
	}
	return decoded, nil
}

func collectAPIKeys(prefix string) []APIKey {
	keys := make([]APIKey, 0)
	for i := 1; i <= 10; i++ {
		envKey := fmt.Sprintf("%s%d", prefix, i)
		if value := os.Getenv(envKey); value != "" {
			keys = append(keys, APIKey{Name: envKey, Secret: value})
		}
	}
	return keys
}
