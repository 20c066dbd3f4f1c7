package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// ValidationSummary counts what one validation pass did.
type ValidationSummary struct {
	Checked          int `json:"checked"`
	ExpiredProcessed int `json:"expired_processed"`
	GraceEntered     int `json:"grace_entered"`
	Suspended        int `json:"suspended"`
	Reconciled       int `json:"reconciled"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

// Transitions is the number of status changes the pass made.
func (s *ValidationSummary) Transitions() int {
	return s.ExpiredProcessed + s.GraceEntered + s.Suspended + s.Reconciled
}

// RunValidationsUseCase is the frequent sweep: it settles payments the
// gateway already decided and moves overdue subscriptions down the dunning path.
type RunValidationsUseCase struct {
	subscriptionRepo subscription.Repository
	transitioner     *Transitioner
	charges          *ChargeManager
	workers          int
	metrics          BillingMetrics
	logger           logger.Interface
	now              func() time.Time
}

func NewRunValidationsUseCase(
	subscriptionRepo subscription.Repository,
	transitioner *Transitioner,
	charges *ChargeManager,
	workers int,
	logger logger.Interface,
) *RunValidationsUseCase {
	return &RunValidationsUseCase{
		subscriptionRepo: subscriptionRepo,
		transitioner:     transitioner,
		charges:          charges,
		workers:          workers,
		metrics:          nopMetrics{},
		logger:           logger,
		now:              biztime.NowUTC,
	}
}

func (uc *RunValidationsUseCase) SetMetrics(m BillingMetrics) {
	if m != nil {
		uc.metrics = m
	}
}

// Execute fails only when the candidate query fails. Per-subscription errors
// are logged and counted.
func (uc *RunValidationsUseCase) Execute(ctx context.Context) (*ValidationSummary, error) {
	started := time.Now()
	now := uc.now()

	overdue, err := uc.subscriptionRepo.FindOverdue(ctx, now, subvo.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue subscriptions: %w", err)
	}
	delinquent, err := uc.subscriptionRepo.FindByStatus(ctx, subvo.StatusPaymentFailed, subvo.StatusGracePeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to find delinquent subscriptions: %w", err)
	}
	candidates := uniqueByID(overdue, delinquent)

	summary := &ValidationSummary{}
	if len(candidates) == 0 {
		uc.logger.Debugw("no subscriptions to validate")
		uc.metrics.BatchCompleted("validation", time.Since(started), 0, 0)
		return summary, nil
	}
	uc.logger.Infow("validating subscriptions", "count", len(candidates))

	var mu sync.Mutex
	record := func(f func(s *ValidationSummary)) {
		mu.Lock()
		defer mu.Unlock()
		f(summary)
	}

	batchErr := forEachSubscription(ctx, uc.workers, candidates, func(ctx context.Context, sub *subscription.Subscription) {
		record(func(s *ValidationSummary) { s.Checked++ })
		uc.validateOne(ctx, sub, now, record)
	})

	uc.metrics.BatchCompleted("validation", time.Since(started), summary.Checked, summary.Failed)
	uc.logger.Infow("subscription validation finished",
		"checked", summary.Checked,
		"expired_processed", summary.ExpiredProcessed,
		"grace_entered", summary.GraceEntered,
		"suspended", summary.Suspended,
		"reconciled", summary.Reconciled,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", time.Since(started),
	)
	return summary, batchErr
}

func (uc *RunValidationsUseCase) validateOne(ctx context.Context, sub *subscription.Subscription, now time.Time, record func(func(*ValidationSummary))) {
	settled, err := uc.charges.Reconcile(ctx, sub, now, "validation")
	if err != nil {
		// gateway result unknown; leave the subscription for the next pass
		uc.logger.Warnw("payment check failed, subscription skipped",
			"subscription_id", sub.ID(), "error", err)
		record(func(s *ValidationSummary) { s.Skipped++ })
		return
	}
	if settled.Applied() && settled.Outcome.Transitioned {
		record(func(s *ValidationSummary) { s.Reconciled++ })
		return
	}

	res, err := uc.transitioner.Transition(ctx, TransitionRequest{
		SubscriptionID: sub.ID(),
		Source:         "validation",
		Input:          subscription.Input{Trigger: subscription.TriggerTick, Now: now},
	})
	if err != nil {
		uc.recordFailure(sub, err, record)
		return
	}
	passed := statusesPassed(res.Outcome)
	if len(passed) == 0 {
		return
	}
	record(func(s *ValidationSummary) {
		for _, st := range passed {
			switch st {
			case subvo.StatusPaymentFailed:
				s.ExpiredProcessed++
			case subvo.StatusGracePeriod:
				s.GraceEntered++
			case subvo.StatusSuspended:
				s.Suspended++
			}
		}
	})
}

func (uc *RunValidationsUseCase) recordFailure(sub *subscription.Subscription, err error, record func(func(*ValidationSummary))) {
	if errors.Is(err, tenant.ErrTenantNotFound) {
		uc.logger.Errorw("subscription references a missing tenant, skipped",
			"subscription_id", sub.ID(), "tenant_id", sub.TenantID())
		record(func(s *ValidationSummary) { s.Skipped++ })
		return
	}
	if errors.Is(err, subscription.ErrVersionConflict) {
		uc.logger.Infow("subscription changed concurrently, retrying next pass", "subscription_id", sub.ID())
		record(func(s *ValidationSummary) { s.Skipped++ })
		return
	}
	uc.logger.Errorw("failed to validate subscription", "subscription_id", sub.ID(), "error", err)
	record(func(s *ValidationSummary) { s.Failed++ })
}

// statusesPassed lists every status a settled tick entered. A single tick
// can go ACTIVE -> PAYMENT_FAILED -> GRACE_PERIOD when a pass was missed.
func statusesPassed(o subscription.Outcome) []subvo.SubscriptionStatus {
	if !o.Transitioned || o.From == o.To {
		return nil
	}
	path := []subvo.SubscriptionStatus{subvo.StatusActive, subvo.StatusPaymentFailed, subvo.StatusGracePeriod, subvo.StatusSuspended}
	var passed []subvo.SubscriptionStatus
	inside := false
	for _, st := range path {
		if inside {
			passed = append(passed, st)
			if st == o.To {
				break
			}
		}
		if st == o.From {
			inside = true
		}
	}
	return passed
}
