package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bookwise-inc/bookwise/internal/shared/goroutine"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// DeliveryObserver is told about every delivery attempt outcome.
type DeliveryObserver interface {
	NotificationDelivered(kind string, err error)
}

// Dispatcher drains a buffered channel on one worker goroutine. When the
// buffer is full new notifications are dropped and logged.
type Dispatcher struct {
	sender      Sender
	observer    DeliveryObserver
	logger      logger.Interface
	sendTimeout time.Duration

	ch       chan Notification
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(sender Sender, bufferSize int, sendTimeout time.Duration, observer DeliveryObserver, log logger.Interface) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:      sender,
		observer:    observer,
		logger:      log,
		sendTimeout: sendTimeout,
		ch:          make(chan Notification, bufferSize),
		stopCh:      make(chan struct{}),
	}
}

func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("notification dispatcher already running")
	}
	d.running = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	d.logger.Infow("notification dispatcher started", "buffer", cap(d.ch))
	return nil
}

// Stop delivers what is already queued and then returns.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		close(d.stopCh)
		d.wg.Wait()
		d.logger.Infow("notification dispatcher stopped")
	})
}

// Enqueue never blocks. It reports false when the notification was dropped.
func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		d.logger.Warnw("notification dropped, dispatcher not running",
			"kind", n.Kind, "subscription_id", n.SubscriptionID)
		return false
	}
	select {
	case d.ch <- n:
		return true
	default:
		d.logger.Warnw("notification dropped, queue full",
			"kind", n.Kind, "subscription_id", n.SubscriptionID, "capacity", cap(d.ch))
		return false
	}
}

func (d *Dispatcher) loop() {
	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.stopCh:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	defer goroutine.Recover(d.logger, "notification-dispatcher")

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	err := d.sender.Send(ctx, n)
	if d.observer != nil {
		d.observer.NotificationDelivered(string(n.Kind), err)
	}
	if err != nil {
		d.logger.Warnw("failed to deliver billing notification",
			"kind", n.Kind,
			"subscription_id", n.SubscriptionID,
			"tenant_id", n.TenantID,
			"error", err,
		)
		return
	}
	d.logger.Debugw("billing notification delivered",
		"kind", n.Kind, "subscription_id", n.SubscriptionID)
}
