package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

const subscriptionLockPrefix = "bookwise:billing:lock:subscription:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("lock held by another owner")

// RedisSubscriptionLocker serializes transitions of one subscription across
// instances. The TTL must cover a transition; it only matters if the holder dies.
type RedisSubscriptionLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Interface
}

func NewRedisSubscriptionLocker(client *redis.Client, ttl time.Duration, log logger.Interface) *RedisSubscriptionLocker {
	return &RedisSubscriptionLocker{
		client: client,
		ttl:    ttl,
		logger: log.With("component", "cache.subscription_lock"),
	}
}

// Lock blocks until the lock is acquired or ctx ends.
func (l *RedisSubscriptionLocker) Lock(ctx context.Context, subscriptionID uint) (func(), error) {
	key := subscriptionLockPrefix + strconv.FormatUint(uint64(subscriptionID), 10)
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription %d: %w", subscriptionID, err)
	}

	return func() {
		// release even if the caller's context is already done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warnw("failed to release subscription lock",
				"subscription_id", subscriptionID,
				"error", err,
			)
		}
	}, nil
}
