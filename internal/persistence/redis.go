package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/config"
)

// Redis holds the client backing similar-search rate limits. Client is nil
// when rate limiting is off, so the service never dials Redis it does not use.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client when rate limiting is enabled and an address is set.
// An unreachable server is logged, not fatal: the limiter fails open.
func NewRedis(cfg config.RedisConfig, limits config.RateLimitConfig, logger *zap.Logger) *Redis {
	if limits.SimilarPerWindow <= 0 || cfg.Addr == "" {
		logger.Info("similar search rate limiting disabled; not connecting to redis")
		return &Redis{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis; rate limiting will fail open", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client}
}

// Cmdable returns the client as redis.Cmdable, or a nil interface when not configured.
func (r *Redis) Cmdable() redis.Cmdable {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}
