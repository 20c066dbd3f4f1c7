package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "charge:ch_1:approved")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "charge:ch_1:approved"))
	seen, err = store.Seen(ctx, "charge:ch_1:approved")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = store.Seen(ctx, "charge:ch_1:approved")
	require.NoError(t, err)
	assert.False(t, seen, "keys expire after the ttl")
}

func TestRedisIdempotencyStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdempotencyStore(client, time.Hour)
	mr.Close()

	_, err := store.Seen(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "a"))
	require.NoError(t, store.Mark(ctx, "b"))
	require.NoError(t, store.Mark(ctx, "c"))

	seen, _ := store.Seen(ctx, "a")
	assert.False(t, seen, "oldest key evicted at capacity")
	seen, _ = store.Seen(ctx, "c")
	assert.True(t, seen)
}

func TestRedisSubscriptionLocker_MutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisSubscriptionLocker(client, 5*time.Second, logger.NewNop())

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), 42)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisSubscriptionLocker_ContextCancelled(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewRedisSubscriptionLocker(client, 5*time.Second, logger.NewNop())

	unlock, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 7)
	assert.Error(t, err)

	// other subscriptions are independent
	unlockOther, err := locker.Lock(context.Background(), 8)
	require.NoError(t, err)
	unlockOther()
}

func TestRedisSubscriptionLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisSubscriptionLocker(client, time.Second, logger.NewNop())

	unlockOld, err := locker.Lock(context.Background(), 9)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlockNew, err := locker.Lock(context.Background(), 9)
	require.NoError(t, err)

	unlockOld()
	assert.True(t, mr.Exists(subscriptionLockPrefix+"9"), "expired owner must not release the new lock")
	unlockNew()
	assert.False(t, mr.Exists(subscriptionLockPrefix+"9"))
}

func TestRedisJobLocker(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisJobLocker(client, time.Minute)
	ctx := context.Background()

	lock, err := locker.Lock(ctx, "billing-validations")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "billing-validations")
	assert.Error(t, err, "second instance must skip the tick")

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists(jobLockPrefix+"billing-validations"))

	lock, err = locker.Lock(ctx, "billing-validations")
	require.NoError(t, err)
	require.NoError(t, lock.Unlock(ctx))
}
