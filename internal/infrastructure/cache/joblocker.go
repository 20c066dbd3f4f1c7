package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const jobLockPrefix = "bookwise:scheduler:job:"

// RedisJobLocker lets only one instance run a given scheduler tick.
type RedisJobLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisJobLocker(client *redis.Client, ttl time.Duration) *RedisJobLocker {
	return &RedisJobLocker{client: client, ttl: ttl}
}

func (l *RedisJobLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, jobLockPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire job lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("job %s: %w", key, errLockHeld)
	}
	return &redisJobLock{client: l.client, key: jobLockPrefix + key, token: token}, nil
}

type redisJobLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisJobLock) Unlock(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
