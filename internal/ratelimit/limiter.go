// Package ratelimit throttles oracle-backed operations with a Redis fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/config"
	apperrors "github.com/spec-kit/office-hours/pkg/util/errorutil"
)

// Limiter counts hits per key in a fixed window. Redis failures fail open.
type Limiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// NewLimiter builds a limiter. A non-positive limit disables limiting.
func NewLimiter(client redis.Cmdable, prefix string, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		client: client,
		prefix: prefix,
		limit:  int64(cfg.SimilarPerWindow),
		window: cfg.Window(),
		logger: logger,
	}
}

// Allow records one hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	// EXPIRE NX on every hit re-arms a window whose first EXPIRE was lost.
	var incr *redis.IntCmd
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	}); err != nil {
		return true, err
	}
	return incr.Val() <= l.limit, nil
}

// Middleware limits the authenticated principal. It must run after auth.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := auth.PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		allowed, err := l.Allow(c.UserContext(), strconv.FormatInt(principal.UserID, 10))
		if err != nil {
			l.logger.Warn("rate limiter unavailable; allowing request", zap.Error(err))
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(l.window.Seconds())))
			return apperrors.NewTooManyRequests("too many similar ticket searches; try again later")
		}
		return c.Next()
	}
}
