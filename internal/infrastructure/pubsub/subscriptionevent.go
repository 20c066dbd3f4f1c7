package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	"github.com/bookwise-inc/bookwise/internal/shared/goroutine"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// SubscriptionChangeChannel carries subscription.StatusChangedEvent as JSON.
const SubscriptionChangeChannel = "bookwise:subscription:status"

// SubscriptionEventHandler is a callback function for handling subscription events
type SubscriptionEventHandler func(ctx context.Context, event subscription.StatusChangedEvent)

// RedisSubscriptionEventBus publishes committed status changes so other
// instances can drop cached plan and quota data.
type RedisSubscriptionEventBus struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisSubscriptionEventBus creates a new Redis-based subscription event bus
func NewRedisSubscriptionEventBus(client *redis.Client, logger logger.Interface) *RedisSubscriptionEventBus {
	return &RedisSubscriptionEventBus{
		client: client,
		logger: logger,
	}
}

func (b *RedisSubscriptionEventBus) PublishStatusChanged(ctx context.Context, event subscription.StatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, SubscriptionChangeChannel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish subscription status event",
			"subscription_id", event.SubscriptionID,
			"to", event.To,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("subscription status event published",
		"subscription_id", event.SubscriptionID,
		"from", event.From,
		"to", event.To,
	)
	return nil
}

// Subscribe blocks, calling handler for every event until ctx is done.
func (b *RedisSubscriptionEventBus) Subscribe(ctx context.Context, handler SubscriptionEventHandler) error {
	ps := b.client.Subscribe(ctx, SubscriptionChangeChannel)
	defer ps.Close()

	// Wait for subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to subscription status events",
		"channel", SubscriptionChangeChannel,
	)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("subscription event channel closed")
				return nil
			}

			var event subscription.StatusChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal subscription event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}

			goroutine.SafeGo(b.logger, "subscription-event-handler", func() {
				handler(context.Background(), event)
			})
		}
	}
}
