package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trendwatch/trendwatch-go/pkg/errors"
	"go.uber.org/zap"
)

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
	}, nil
}

// Get unmarshals the value at key into dest. A missing key is not an error;
// dest is left untouched and found is false.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("get failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
			return false, errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}

	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}

	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Error("Cache exists failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("exists failed", "exists", key, err)
	}
	return count > 0, nil
}

// AcquireLock takes a named lock via SETNX with a TTL so a crashed holder
// cannot wedge the system. Returns false when another holder owns it.
func (c *CacheService) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(name), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		c.logger.Error("Lock acquire failed", zap.String("lock", name), zap.Error(err))
		return false, errors.NewCacheError("setnx failed", "setnx", lockKey(name), err)
	}
	return ok, nil
}

func (c *CacheService) ReleaseLock(ctx context.Context, name string) error {
	return c.Del(ctx, lockKey(name))
}

// MarkCooldown records a dedup key for the given window. SetCooldown and
// InCooldown back the alert dedup decision; losing Redis degrades to
// duplicate alerts, never to missed ones.
func (c *CacheService) MarkCooldown(ctx context.Context, key string, window time.Duration) error {
	if err := c.client.Set(ctx, cooldownKey(key), "1", window).Err(); err != nil {
		c.logger.Error("Cooldown mark failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", cooldownKey(key), err)
	}
	return nil
}

func (c *CacheService) InCooldown(ctx context.Context, key string) bool {
	count, err := c.client.Exists(ctx, cooldownKey(key)).Result()
	if err != nil {
		c.logger.Warn("Cooldown check failed, assuming not in cooldown",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return count > 0
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func lockKey(name string) string {
	return "trendwatch:lock:" + name
}

func cooldownKey(key string) string {
	return "trendwatch:cooldown:" + key
}
