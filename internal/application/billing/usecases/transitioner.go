package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/bookwise-inc/bookwise/internal/application/billing/notification"
	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/db"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// TransitionRequest asks the Transitioner to run one lifecycle step.
type TransitionRequest struct {
	SubscriptionID uint
	Input          subscription.Input
	// Source names the caller in logs and metrics.
	Source string

	// Prepare runs inside the transaction after the subscription was re-read.
	// It may rewrite the input and persist related rows. A non-empty skip
	// reason commits those writes and leaves the subscription alone.
	Prepare func(ctx context.Context, snap subscription.Snapshot) (in subscription.Input, skip string, err error)

	// Notification is queued after commit, only if the step changed the subscription.
	Notification *notification.Notification
}

type TransitionResult struct {
	Outcome      subscription.Outcome
	SkipReason   string
	Subscription *subscription.Subscription
}

// Applied reports whether the subscription row was written.
func (r *TransitionResult) Applied() bool {
	return r != nil && r.SkipReason == "" && r.Outcome.Changed
}

// Transitioner is the single write path for subscription state. Every job
// and the webhook handler go through it, so concurrent writers for one
// subscription are serialized by the locker and checked by the row version.
type Transitioner struct {
	subscriptionRepo subscription.Repository
	tenantRepo       tenant.Repository
	txMgr            db.Transactor
	locker           SubscriptionLocker
	policy           subscription.Policy
	notifier         notification.Queue
	events           EventPublisher
	metrics          BillingMetrics
	logger           logger.Interface
	now              func() time.Time
}

func NewTransitioner(
	subscriptionRepo subscription.Repository,
	tenantRepo tenant.Repository,
	txMgr db.Transactor,
	locker SubscriptionLocker,
	policy subscription.Policy,
	notifier notification.Queue,
	logger logger.Interface,
) *Transitioner {
	return &Transitioner{
		subscriptionRepo: subscriptionRepo,
		tenantRepo:       tenantRepo,
		txMgr:            txMgr,
		locker:           locker,
		policy:           policy,
		notifier:         notifier,
		metrics:          nopMetrics{},
		logger:           logger,
		now:              biztime.NowUTC,
	}
}

// SetEventPublisher sets the optional status change publisher.
func (t *Transitioner) SetEventPublisher(p EventPublisher) {
	t.events = p
}

// SetMetrics sets the optional metrics recorder.
func (t *Transitioner) SetMetrics(m BillingMetrics) {
	if m != nil {
		t.metrics = m
	}
}

// Policy returns the dunning policy used for every step.
func (t *Transitioner) Policy() subscription.Policy {
	return t.policy
}

func (t *Transitioner) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	unlock, err := t.locker.Lock(ctx, req.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription %d: %w", req.SubscriptionID, err)
	}
	defer unlock()

	result := &TransitionResult{}
	var owner *tenant.Tenant
	var applied subscription.Input

	err = t.txMgr.RunInTransaction(ctx, func(txCtx context.Context) error {
		sub, err := t.subscriptionRepo.GetByID(txCtx, req.SubscriptionID)
		if err != nil {
			return err
		}
		snap := sub.Snapshot()

		in := req.Input
		if req.Prepare != nil {
			var skip string
			in, skip, err = req.Prepare(txCtx, snap)
			if err != nil {
				return err
			}
			if skip != "" {
				result.SkipReason = skip
				result.Subscription = sub
				return nil
			}
		}
		if in.Now.IsZero() {
			in.Now = t.now()
		}
		applied = in

		outcome := subscription.Apply(snap, in, t.policy)
		result.Outcome = outcome
		result.Subscription = sub
		if !outcome.Changed {
			return nil
		}

		if err := sub.Apply(outcome, in.Now); err != nil {
			return err
		}
		if err := t.subscriptionRepo.Update(txCtx, sub); err != nil {
			return err
		}

		needTenant := len(outcome.Effects) > 0 || len(outcome.Notifications) > 0 || req.Notification != nil
		if !needTenant {
			return nil
		}
		owner, err = t.tenantRepo.GetByID(txCtx, sub.TenantID())
		if err != nil {
			return fmt.Errorf("tenant %d of subscription %d: %w", sub.TenantID(), sub.ID(), err)
		}
		return t.applyEffects(txCtx, sub, outcome)
	})
	if err != nil {
		return nil, err
	}

	if result.Applied() {
		t.afterCommit(ctx, req, applied, result, owner)
	}
	return result, nil
}

// applyEffects keeps the tenant's effective plan in step with the subscription.
func (t *Transitioner) applyEffects(ctx context.Context, sub *subscription.Subscription, outcome subscription.Outcome) error {
	for _, effect := range outcome.Effects {
		tier := sub.PlanTier()
		if effect == subscription.EffectSuspendTenant {
			tier = subvo.PlanTierFree
		}
		if err := t.tenantRepo.UpdatePlan(ctx, sub.TenantID(), tier, tier.Quota()); err != nil {
			return fmt.Errorf("failed to %s for tenant %d: %w", effect, sub.TenantID(), err)
		}
	}
	return nil
}

func (t *Transitioner) afterCommit(ctx context.Context, req TransitionRequest, in subscription.Input, result *TransitionResult, owner *tenant.Tenant) {
	outcome := result.Outcome
	sub := result.Subscription

	if outcome.Transitioned {
		t.logger.Infow("subscription transitioned",
			"subscription_id", sub.ID(),
			"tenant_id", sub.TenantID(),
			"from", outcome.From,
			"to", outcome.To,
			"trigger", in.Trigger,
			"source", req.Source,
			"reason", outcome.Reason,
		)
		t.metrics.TransitionApplied(req.Source, string(outcome.From), string(outcome.To))

		if t.events != nil {
			evt := subscription.NewStatusChangedEvent(outcome, in.Trigger, sub.Version(), in.Now)
			if err := t.events.PublishStatusChanged(ctx, evt); err != nil {
				t.logger.Warnw("failed to publish subscription status change",
					"subscription_id", sub.ID(), "error", err)
			}
		}
	}

	if owner == nil || t.notifier == nil {
		return
	}
	for _, kind := range outcome.Notifications {
		t.notifier.Enqueue(buildNotification(kind, sub, owner))
	}
	if req.Notification != nil {
		n := *req.Notification
		fillRecipient(&n, sub, owner)
		t.notifier.Enqueue(n)
	}
}

func buildNotification(kind subscription.NotificationKind, sub *subscription.Subscription, owner *tenant.Tenant) notification.Notification {
	n := notification.Notification{Kind: kind}
	fillRecipient(&n, sub, owner)
	md := sub.Metadata()
	switch kind {
	case subscription.NotifySuspended:
		n.Reason = md.SuspensionReason
	case subscription.NotifyGraceStarted, subscription.NotifyPaymentFailed:
		if md.GraceDeadline != nil {
			d := *md.GraceDeadline
			n.DueDate = &d
		}
	}
	return n
}

func fillRecipient(n *notification.Notification, sub *subscription.Subscription, owner *tenant.Tenant) {
	n.TenantID = owner.ID()
	n.SubscriptionID = sub.ID()
	n.TenantName = owner.Name()
	n.ContactEmail = owner.ContactEmail()
	n.PlanTier = sub.PlanTier()
	if !n.Amount.IsPositive() {
		n.Amount = sub.Price()
	}
	if n.DueDate == nil && sub.NextBillingDate() != nil {
		d := *sub.NextBillingDate()
		n.DueDate = &d
	}
}
