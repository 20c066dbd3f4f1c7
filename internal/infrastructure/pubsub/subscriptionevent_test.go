package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

func TestSubscriptionEventBus_PublishAndSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisSubscriptionEventBus(client, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan subscription.StatusChangedEvent, 1)
	go func() {
		_ = bus.Subscribe(ctx, func(_ context.Context, e subscription.StatusChangedEvent) {
			received <- e
		})
	}()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.PublishStatusChanged(context.Background(), subscription.StatusChangedEvent{
		SubscriptionID: 5,
		TenantID:       3,
		From:           vo.StatusGracePeriod,
		To:             vo.StatusSuspended,
		Trigger:        subscription.TriggerTick,
		Version:        4,
		OccurredAt:     at,
	}))

	select {
	case e := <-received:
		assert.Equal(t, uint(5), e.SubscriptionID)
		assert.Equal(t, vo.StatusSuspended, e.To)
		assert.True(t, at.Equal(e.OccurredAt))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriptionEventBus_PublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	bus := NewRedisSubscriptionEventBus(client, logger.NewNop())
	err := bus.PublishStatusChanged(context.Background(), subscription.StatusChangedEvent{SubscriptionID: 1})
	assert.Error(t, err)
}
