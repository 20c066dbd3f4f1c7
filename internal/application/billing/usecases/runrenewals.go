package usecases

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bookwise-inc/bookwise/internal/application/billing/notification"
	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// RenewalSummary counts what one renewal pass did.
type RenewalSummary struct {
	UpcomingChecked int `json:"upcoming_checked"`
	RemindersSent   int `json:"reminders_sent"`
	RetriesSent     int `json:"retries_sent"`
	ChargesCreated  int `json:"charges_created"`
	ChargesReused   int `json:"charges_reused"`
	ChargesExpired  int `json:"charges_expired"`
	OverdueChecked  int `json:"overdue_checked"`
	Renewed         int `json:"renewed"`
	PaymentFailed   int `json:"payment_failed"`
	GraceEntered    int `json:"grace_entered"`
	Suspended       int `json:"suspended"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

func (s *RenewalSummary) Transitions() int {
	return s.Renewed + s.PaymentFailed + s.GraceEntered + s.Suspended
}

type RenewalSettings struct {
	LeadDays      []int
	LookaheadDays int
	Workers       int
}

// RunRenewalsUseCase is the slower sweep: renewal reminders with checkout
// links ahead of the due date, then retries and suspensions for overdue
// subscriptions.
type RunRenewalsUseCase struct {
	subscriptionRepo subscription.Repository
	paymentRepo      payment.Repository
	tenantRepo       tenant.Repository
	transitioner     *Transitioner
	charges          *ChargeManager
	settings         RenewalSettings
	metrics          BillingMetrics
	logger           logger.Interface
	now              func() time.Time
}

func NewRunRenewalsUseCase(
	subscriptionRepo subscription.Repository,
	paymentRepo payment.Repository,
	tenantRepo tenant.Repository,
	transitioner *Transitioner,
	charges *ChargeManager,
	settings RenewalSettings,
	logger logger.Interface,
) *RunRenewalsUseCase {
	return &RunRenewalsUseCase{
		subscriptionRepo: subscriptionRepo,
		paymentRepo:      paymentRepo,
		tenantRepo:       tenantRepo,
		transitioner:     transitioner,
		charges:          charges,
		settings:         settings,
		metrics:          nopMetrics{},
		logger:           logger,
		now:              biztime.NowUTC,
	}
}

func (uc *RunRenewalsUseCase) SetMetrics(m BillingMetrics) {
	if m != nil {
		uc.metrics = m
	}
}

type renewalRecorder func(func(*RenewalSummary))

// Execute runs every renewal step even if an earlier one could not load its
// candidates; the returned error joins those setup failures.
func (uc *RunRenewalsUseCase) Execute(ctx context.Context) (*RenewalSummary, error) {
	started := time.Now()
	now := uc.now()

	summary := &RenewalSummary{}
	var mu sync.Mutex
	record := renewalRecorder(func(f func(*RenewalSummary)) {
		mu.Lock()
		defer mu.Unlock()
		f(summary)
	})

	errExpire := uc.expireStaleCharges(ctx, now, record)
	errUpcoming := uc.processUpcomingExpirations(ctx, now, record)
	errOverdue := uc.suspendExpiredSubscriptions(ctx, now, record)

	uc.metrics.BatchCompleted("renewal", time.Since(started), summary.UpcomingChecked+summary.OverdueChecked, summary.Failed)
	uc.logger.Infow("renewal pass finished",
		"upcoming_checked", summary.UpcomingChecked,
		"reminders_sent", summary.RemindersSent,
		"retries_sent", summary.RetriesSent,
		"charges_created", summary.ChargesCreated,
		"charges_reused", summary.ChargesReused,
		"charges_expired", summary.ChargesExpired,
		"overdue_checked", summary.OverdueChecked,
		"renewed", summary.Renewed,
		"payment_failed", summary.PaymentFailed,
		"grace_entered", summary.GraceEntered,
		"suspended", summary.Suspended,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", time.Since(started),
	)
	return summary, errors.Join(errExpire, errUpcoming, errOverdue)
}

// expireStaleCharges closes pending checkouts past their lifetime, applying
// any that were paid in the meantime.
func (uc *RunRenewalsUseCase) expireStaleCharges(ctx context.Context, now time.Time, record renewalRecorder) error {
	stale, err := uc.paymentRepo.FindExpiredPending(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to find expired pending payments: %w", err)
	}
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		renewed, err := uc.charges.closeStale(ctx, p, now, "renewal")
		if err != nil {
			uc.logger.Warnw("failed to close stale charge",
				"payment_id", p.ID(), "subscription_id", p.SubscriptionID(), "error", err)
			record(func(s *RenewalSummary) { s.Skipped++ })
			continue
		}
		record(func(s *RenewalSummary) {
			if renewed {
				s.Renewed++
			} else {
				s.ChargesExpired++
			}
		})
	}
	return nil
}

// processUpcomingExpirations sends one renewal reminder on each lead day
// before the due date. A missed lead day is never sent late. The window runs
// to the end of the last lookahead day so a due date late in that day is
// already a candidate on its lead day.
func (uc *RunRenewalsUseCase) processUpcomingExpirations(ctx context.Context, now time.Time, record renewalRecorder) error {
	until := biztime.EndOfDayUTC(now, uc.settings.LookaheadDays)
	subs, err := uc.subscriptionRepo.FindDueWithin(ctx, now, until)
	if err != nil {
		return fmt.Errorf("failed to find upcoming renewals: %w", err)
	}
	return forEachSubscription(ctx, uc.settings.Workers, subs, func(ctx context.Context, sub *subscription.Subscription) {
		record(func(s *RenewalSummary) { s.UpcomingChecked++ })

		daysLeft := biztime.DaysUntil(now, *sub.NextBillingDate())
		if !slices.Contains(uc.settings.LeadDays, daysLeft) {
			return
		}
		if sub.Metadata().ReminderSentOn(now) {
			uc.logger.Debugw("renewal reminder already sent today", "subscription_id", sub.ID())
			return
		}
		uc.sendReminder(ctx, sub, now, reminderSpec{kind: subscription.NotifyRenewalReminder, daysLeft: daysLeft}, record)
	})
}

// suspendExpiredSubscriptions is the last chance for overdue subscriptions:
// apply a payment that arrived, otherwise advance dunning and send any
// retry that fell due.
func (uc *RunRenewalsUseCase) suspendExpiredSubscriptions(ctx context.Context, now time.Time, record renewalRecorder) error {
	subs, err := uc.subscriptionRepo.FindOverdue(ctx, now, subvo.StatusActive, subvo.StatusPaymentFailed, subvo.StatusGracePeriod)
	if err != nil {
		return fmt.Errorf("failed to find overdue subscriptions: %w", err)
	}
	return forEachSubscription(ctx, uc.settings.Workers, subs, func(ctx context.Context, sub *subscription.Subscription) {
		record(func(s *RenewalSummary) { s.OverdueChecked++ })

		settled, err := uc.charges.Reconcile(ctx, sub, now, "renewal")
		if err != nil {
			uc.logger.Warnw("payment check failed, subscription skipped",
				"subscription_id", sub.ID(), "error", err)
			record(func(s *RenewalSummary) { s.Skipped++ })
			return
		}
		if settled.Applied() && settled.Outcome.Transitioned {
			record(func(s *RenewalSummary) { s.Renewed++ })
			return
		}

		res, err := uc.transitioner.Transition(ctx, TransitionRequest{
			SubscriptionID: sub.ID(),
			Source:         "renewal",
			Input:          subscription.Input{Trigger: subscription.TriggerTick, Now: now},
		})
		if err != nil {
			uc.recordFailure(sub, err, record)
			return
		}
		if passed := statusesPassed(res.Outcome); len(passed) > 0 {
			record(func(s *RenewalSummary) {
				for _, st := range passed {
					switch st {
					case subvo.StatusPaymentFailed:
						s.PaymentFailed++
					case subvo.StatusGracePeriod:
						s.GraceEntered++
					case subvo.StatusSuspended:
						s.Suspended++
					}
				}
			})
		}

		cur := res.Subscription
		if !cur.Status().IsDelinquent() {
			return
		}
		md := cur.Metadata()
		due := md.RetriesDue(now)
		if due <= md.RetryAttempts || md.ReminderSentOn(now) {
			return
		}
		uc.sendReminder(ctx, cur, now, reminderSpec{kind: subscription.NotifyPaymentRetry, retryAttempts: due}, record)
	})
}

type reminderSpec struct {
	kind          subscription.NotificationKind
	daysLeft      int
	retryAttempts int
}

// sendReminder makes sure a checkout exists, then records the reminder. The
// message itself is queued only once the record is committed.
func (uc *RunRenewalsUseCase) sendReminder(ctx context.Context, sub *subscription.Subscription, now time.Time, spec reminderSpec, record renewalRecorder) {
	owner, err := uc.tenantRepo.GetByID(ctx, sub.TenantID())
	if err != nil {
		uc.recordFailure(sub, fmt.Errorf("load tenant: %w", err), record)
		return
	}

	charge, err := uc.charges.EnsureCharge(ctx, sub, owner, now)
	if err != nil {
		uc.logger.Warnw("could not prepare renewal charge, reminder skipped",
			"subscription_id", sub.ID(), "kind", spec.kind, "error", err)
		record(func(s *RenewalSummary) { s.Skipped++ })
		return
	}
	record(func(s *RenewalSummary) {
		switch {
		case charge.Created:
			s.ChargesCreated++
		case charge.Reused:
			s.ChargesReused++
		}
		if charge.ExpiredPrevious {
			s.ChargesExpired++
		}
		if charge.Renewed {
			s.Renewed++
		}
	})
	if charge.Renewed {
		return
	}

	due := *sub.NextBillingDate()
	p := charge.Payment
	n := &notification.Notification{
		Kind:     spec.kind,
		Amount:   p.Amount(),
		DueDate:  &due,
		DaysLeft: spec.daysLeft,
	}
	if url := p.CheckoutURL(); url != nil {
		n.CheckoutURL = *url
	}

	res, err := uc.transitioner.Transition(ctx, TransitionRequest{
		SubscriptionID: sub.ID(),
		Source:         "renewal",
		Notification:   n,
		Prepare: func(_ context.Context, snap subscription.Snapshot) (subscription.Input, string, error) {
			in := subscription.Input{Trigger: subscription.TriggerReminderSent, Now: now, RetryAttempts: spec.retryAttempts}
			switch {
			case snap.Metadata.ReminderSentOn(now):
				return in, "reminder already sent today", nil
			case snap.NextBillingDate == nil || !snap.NextBillingDate.Equal(due):
				return in, "billing date moved", nil
			case spec.retryAttempts > 0 && snap.Metadata.RetryAttempts >= spec.retryAttempts:
				return in, "retry already sent", nil
			}
			return in, "", nil
		},
	})
	if err != nil {
		uc.recordFailure(sub, err, record)
		return
	}
	if !res.Applied() {
		uc.logger.Debugw("reminder not recorded", "subscription_id", sub.ID(), "reason", res.SkipReason)
		return
	}
	record(func(s *RenewalSummary) {
		if spec.kind == subscription.NotifyPaymentRetry {
			s.RetriesSent++
		} else {
			s.RemindersSent++
		}
	})
}

func (uc *RunRenewalsUseCase) recordFailure(sub *subscription.Subscription, err error, record renewalRecorder) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		uc.logger.Errorw("subscription references a missing tenant, skipped",
			"subscription_id", sub.ID(), "tenant_id", sub.TenantID())
		record(func(s *RenewalSummary) { s.Skipped++ })
	case errors.Is(err, subscription.ErrVersionConflict):
		uc.logger.Infow("subscription changed concurrently, retrying next pass", "subscription_id", sub.ID())
		record(func(s *RenewalSummary) { s.Skipped++ })
	default:
		uc.logger.Errorw("renewal step failed", "subscription_id", sub.ID(), "error", err)
		record(func(s *RenewalSummary) { s.Failed++ })
	}
}
