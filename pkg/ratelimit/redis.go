package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces limiter counters
const DefaultKeyPrefix = "warden:ratelimit"

// RedisLimiter is a fixed-window limiter shared by every replica
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, config Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLimiter{
		redis:  client,
		config: config.withDefaults(),
		prefix: prefix,
	}
}

func (rl *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts one attempt for key. Every attempt extends the window, so a
// blocked key stays blocked until it has been quiet for a full window.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.Attempts+rl.config.Burst), nil
}

// Remaining returns the number of attempts left in the current window
func (rl *RedisLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return rl.config.Attempts + rl.config.Burst, nil
	}
	if err != nil {
		return 0, err
	}
	return max(rl.config.Attempts+rl.config.Burst-count, 0), nil
}

// TTL returns the time until the window of key resets
func (rl *RedisLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset clears the counter of key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}
