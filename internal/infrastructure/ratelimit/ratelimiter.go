// Package ratelimit limits inbound webhook and admin traffic per client.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter is a sliding window limiter shared by all instances.
type RedisRateLimiter struct {
	client *redis.Client
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, name string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		name:   name,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	now := l.now()
	redisKey := l.key(key)
	windowStart := now.Add(-l.window).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	zcard := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, redisKey, l.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	return zcard.Val() < int64(l.limit), nil
}

func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}

func (l *RedisRateLimiter) key(identifier string) string {
	return fmt.Sprintf("bookwise:ratelimit:%s:%s", l.name, identifier)
}
