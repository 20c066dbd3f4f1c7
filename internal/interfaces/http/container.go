package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/application/billing/notification"
	"github.com/bookwise-inc/bookwise/internal/application/billing/usecases"
	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	domainPayment "github.com/bookwise-inc/bookwise/internal/domain/payment"
	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/auth"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/cache"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/config"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/email"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/metrics"
	infraPayment "github.com/bookwise-inc/bookwise/internal/infrastructure/payment"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/pubsub"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/repository"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/scheduler"
	shareddb "github.com/bookwise-inc/bookwise/internal/shared/db"
	"github.com/bookwise-inc/bookwise/internal/shared/goroutine"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

const (
	memoryIdempotencySize = 50_000
	notificationSendTTL   = 30 * time.Second
)

// Container wires the billing engine: storage, gateway, notification
// delivery, the transition use cases and the scheduler. The HTTP server and
// the one-shot CLI commands both build one.
type Container struct {
	db    *gorm.DB
	cfg   *config.Config
	log   logger.Interface
	redis *redis.Client

	// Repositories
	subscriptionRepo subscription.Repository
	tenantRepo       tenant.Repository
	paymentRepo      domainPayment.Repository

	// Infrastructure services
	metrics       *metrics.BillingCollector
	gateway       *infraPayment.BreakerGateway
	stripeGateway *infraPayment.StripeGateway
	dispatcher    *notification.Dispatcher
	eventBus      *pubsub.RedisSubscriptionEventBus
	adminTokens   *auth.AdminTokenService

	// Use cases
	transitioner *usecases.Transitioner
	charges      *usecases.ChargeManager
	validations  *usecases.RunValidationsUseCase
	renewals     *usecases.RunRenewalsUseCase
	webhooks     *usecases.HandlePaymentNotificationUseCase

	schedulerManager *scheduler.SchedulerManager

	eventCancel context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// NewContainer builds every billing component. redisClient may be nil, in
// which case in-process locks and the in-memory idempotency store are used.
func NewContainer(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		db:    db,
		cfg:   cfg,
		log:   log,
		redis: redisClient,
	}

	// Section 1: Repositories and metrics
	c.subscriptionRepo = repository.NewSubscriptionRepository(db, log)
	c.tenantRepo = repository.NewTenantRepository(db)
	c.paymentRepo = repository.NewPaymentRepository(db)
	c.metrics = metrics.NewBillingCollector()
	c.adminTokens = auth.NewAdminTokenService(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenExpDays)

	// Section 2: Gateway
	if err := c.initGateway(); err != nil {
		return nil, err
	}

	// Section 3: Notifications and events
	sender := email.NewSMTPNotificationSender(cfg.Email, log)
	c.dispatcher = notification.NewDispatcher(sender, cfg.Billing.NotificationQueueSize, notificationSendTTL, c.metrics, log.Named("notification"))
	if redisClient != nil {
		c.eventBus = pubsub.NewRedisSubscriptionEventBus(redisClient, log)
	}

	// Section 4: Use cases
	if err := c.initUseCases(); err != nil {
		return nil, err
	}

	// Section 5: Scheduler
	return c, c.initScheduler()
}

func (c *Container) initGateway() error {
	billing := c.cfg.Billing

	var inner paymentgateway.PaymentGateway
	switch billing.Gateway {
	case "stripe":
		if c.cfg.Stripe.APIKey == "" {
			return errors.New("stripe gateway selected but stripe.api_key is empty")
		}
		c.stripeGateway = infraPayment.NewStripeGateway(c.cfg.Stripe, c.log)
		inner = c.stripeGateway
	case "mock":
		c.log.Warnw("using mock payment gateway; charges never settle on their own")
		inner = paymentgateway.NewMockGateway()
	default:
		return fmt.Errorf("unknown payment gateway %q", billing.Gateway)
	}

	c.gateway = infraPayment.NewBreakerGateway(inner, infraPayment.BreakerSettings{
		Name:     billing.Gateway,
		Timeout:  billing.GatewayTimeout(),
		Failures: uint32(billing.BreakerFailures),
		OpenFor:  billing.BreakerOpen(),
	}, c.metrics, c.log)
	return nil
}

func (c *Container) initUseCases() error {
	billing := c.cfg.Billing
	log := c.log.Named("billing")

	var locker usecases.SubscriptionLocker = usecases.NewKeyedMutex()
	if billing.DistributedLock {
		if c.redis == nil {
			return errors.New("billing.distributed_lock requires redis")
		}
		locker = cache.NewRedisSubscriptionLocker(c.redis, billing.LockTTL(), log)
	}

	var idempotency usecases.IdempotencyStore
	switch {
	case billing.IdempotencyStore == "redis" && c.redis != nil:
		idempotency = cache.NewRedisIdempotencyStore(c.redis, billing.IdempotencyTTL())
	case billing.IdempotencyStore == "redis":
		log.Warnw("redis unavailable, using in-memory idempotency store")
		fallthrough
	default:
		idempotency = cache.NewMemoryIdempotencyStore(memoryIdempotencySize, billing.IdempotencyTTL())
	}

	policy := subscription.NewPolicy(billing.RetryDays, billing.GraceDays)

	c.transitioner = usecases.NewTransitioner(
		c.subscriptionRepo, c.tenantRepo, shareddb.NewTransactionManager(c.db),
		locker, policy, c.dispatcher, log,
	)
	c.transitioner.SetMetrics(c.metrics)
	if c.eventBus != nil {
		c.transitioner.SetEventPublisher(c.eventBus)
	}

	c.charges = usecases.NewChargeManager(
		c.paymentRepo, c.gateway, c.transitioner,
		billing.ChargeLifetime(), billing.GatewayTimeout(), log,
	)

	c.validations = usecases.NewRunValidationsUseCase(c.subscriptionRepo, c.transitioner, c.charges, billing.Workers, log)
	c.validations.SetMetrics(c.metrics)

	c.renewals = usecases.NewRunRenewalsUseCase(
		c.subscriptionRepo, c.paymentRepo, c.tenantRepo, c.transitioner, c.charges,
		usecases.RenewalSettings{
			LeadDays:      billing.ReminderLeadDays,
			LookaheadDays: billing.LookaheadDays,
			Workers:       billing.Workers,
		}, log,
	)
	c.renewals.SetMetrics(c.metrics)

	c.webhooks = usecases.NewHandlePaymentNotificationUseCase(c.paymentRepo, c.gateway, c.charges, idempotency, log)
	c.webhooks.SetMetrics(c.metrics)
	return nil
}

func (c *Container) initScheduler() error {
	billing := c.cfg.Billing
	schedCfg := scheduler.Config{
		ValidationInterval: billing.ValidationInterval(),
		RenewalInterval:    billing.RenewalInterval(),
		JobTimeout:         billing.JobTimeout(),
	}
	if billing.DistributedLock && c.redis != nil {
		schedCfg.Locker = cache.NewRedisJobLocker(c.redis, billing.JobTimeout()+time.Minute)
	}

	mgr, err := scheduler.NewSchedulerManager(schedCfg, c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := mgr.RegisterBillingJobs(c.validations, c.renewals); err != nil {
		return fmt.Errorf("failed to register billing jobs: %w", err)
	}
	c.schedulerManager = mgr
	return nil
}

// StartDispatcher starts notification delivery. One-shot commands call it
// without starting the scheduler.
func (c *Container) StartDispatcher() error {
	return c.dispatcher.Start()
}

// StartBackground starts notification delivery, the event listener and the
// billing scheduler.
func (c *Container) StartBackground() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if err := c.dispatcher.Start(); err != nil {
		return err
	}

	if c.eventBus != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.eventCancel = cancel
		goroutine.SafeGo(c.log, "subscription-event-listener", func() {
			err := c.eventBus.Subscribe(ctx, func(_ context.Context, evt subscription.StatusChangedEvent) {
				c.log.Infow("subscription status changed",
					"subscription_id", evt.SubscriptionID,
					"tenant_id", evt.TenantID,
					"from", evt.From,
					"to", evt.To,
					"trigger", evt.Trigger,
				)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.Errorw("subscription event listener stopped", "error", err)
			}
		})
	}

	c.schedulerManager.Start()
	c.started = true
	return nil
}

// Shutdown stops the scheduler first so no new transitions are queued, then
// drains the notification queue.
func (c *Container) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		if err := c.schedulerManager.Stop(); err != nil {
			c.log.Warnw("scheduler shutdown error", "error", err)
		}
		if c.eventCancel != nil {
			c.eventCancel()
		}
		c.started = false
	}
	c.dispatcher.Stop()
}

func (c *Container) Scheduler() *scheduler.SchedulerManager { return c.schedulerManager }

func (c *Container) Metrics() *metrics.BillingCollector { return c.metrics }

func (c *Container) AdminTokens() *auth.AdminTokenService { return c.adminTokens }

func (c *Container) PaymentNotifications() *usecases.HandlePaymentNotificationUseCase {
	return c.webhooks
}

// StripeWebhooks returns nil unless the Stripe gateway is configured.
func (c *Container) StripeWebhooks() *infraPayment.StripeGateway { return c.stripeGateway }
