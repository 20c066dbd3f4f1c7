package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "bookwise:billing:notification:"

// RedisIdempotencyStore remembers processed gateway notifications across
// instances. Entries expire after ttl; the payment row stays the real guard.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

func (s *RedisIdempotencyStore) Mark(ctx context.Context, key string) error {
	if err := s.client.SetNX(ctx, idempotencyPrefix+key, time.Now().UTC().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// MemoryIdempotencyStore is the single-instance fallback used when Redis is
// not configured.
type MemoryIdempotencyStore struct {
	seen *lru.LRU[string, struct{}]
}

func NewMemoryIdempotencyStore(size int, ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{seen: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryIdempotencyStore) Seen(_ context.Context, key string) (bool, error) {
	return s.seen.Contains(key), nil
}

func (s *MemoryIdempotencyStore) Mark(_ context.Context, key string) error {
	s.seen.Add(key, struct{}{})
	return nil
}
