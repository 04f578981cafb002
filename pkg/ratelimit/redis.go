package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisGovernor is a Redis-backed fixed-window governor shared by all
// gateway instances. The window is an INCR counter whose TTL is set on
// the first request of the window, so expiry is handled by Redis.
type RedisGovernor struct {
	redis   *redis.Client
	ceiling int
	window  time.Duration
	logger  zerolog.Logger
}

// NewRedisGovernor creates a governor backed by the given Redis client.
func NewRedisGovernor(redisClient *redis.Client, ceiling int, window time.Duration, logger zerolog.Logger) *RedisGovernor {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ceiling <= 0 {
		panic("ceiling must be positive")
	}
	if window <= 0 {
		panic("window must be positive")
	}
	return &RedisGovernor{
		redis:   redisClient,
		ceiling: ceiling,
		window:  window,
		logger:  logger,
	}
}

func (g *RedisGovernor) key(identity string) string {
	return "ratelimit:" + identity
}

// Admit counts the request against the identity's current window.
func (g *RedisGovernor) Admit(ctx context.Context, identity string) (Decision, error) {
	key := g.key(identity)

	pipe := g.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	// NX: only the first request of a window sets the TTL.
	pipe.ExpireNX(ctx, key, g.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate window update: %w", err)
	}

	count := int(incr.Val())
	if count > g.ceiling {
		retryAfter, err := g.redis.TTL(ctx, key).Result()
		if err != nil || retryAfter < 0 {
			retryAfter = g.window
		}
		deniedTotal.WithLabelValues("redis").Inc()
		g.logger.Debug().
			Str("identity", identity).
			Int("count", count).
			Msg("Request denied by rate governor")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter,
		}, nil
	}

	admittedTotal.WithLabelValues("redis").Inc()
	return Decision{
		Allowed:   true,
		Remaining: g.ceiling - count,
	}, nil
}
