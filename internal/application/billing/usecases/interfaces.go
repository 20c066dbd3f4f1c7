package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
)

// SubscriptionLocker serializes work on one subscription. The returned
// unlock func must always be called.
type SubscriptionLocker interface {
	Lock(ctx context.Context, subscriptionID uint) (unlock func(), err error)
}

// IdempotencyStore remembers processed gateway notifications.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// EventPublisher fans committed status changes out to other services.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, evt subscription.StatusChangedEvent) error
}

// BillingMetrics records what the billing jobs did.
type BillingMetrics interface {
	TransitionApplied(source string, from, to string)
	BatchCompleted(job string, duration time.Duration, processed, failed int)
	WebhookHandled(result string)
}

type nopMetrics struct{}

func (nopMetrics) TransitionApplied(string, string, string)       {}
func (nopMetrics) BatchCompleted(string, time.Duration, int, int) {}
func (nopMetrics) WebhookHandled(string)                          {}

// KeyedMutex is the in-process SubscriptionLocker. It is enough for a single
// instance; multi-instance deployments use the Redis lock instead.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uint]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, id uint) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, e)
		return func() {}, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(id, e)
		})
	}, nil
}

func (k *KeyedMutex) release(id uint, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, id)
	}
}
