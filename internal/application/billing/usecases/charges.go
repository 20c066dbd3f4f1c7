package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// ChargeManager owns renewal charges: it reuses an open checkout, opens a new
// one when needed and settles charges whose outcome the gateway already knows.
type ChargeManager struct {
	paymentRepo    payment.Repository
	gateway        paymentgateway.PaymentGateway
	transitioner   *Transitioner
	chargeLifetime time.Duration
	gatewayTimeout time.Duration
	logger         logger.Interface
}

func NewChargeManager(
	paymentRepo payment.Repository,
	gateway paymentgateway.PaymentGateway,
	transitioner *Transitioner,
	chargeLifetime, gatewayTimeout time.Duration,
	logger logger.Interface,
) *ChargeManager {
	return &ChargeManager{
		paymentRepo:    paymentRepo,
		gateway:        gateway,
		transitioner:   transitioner,
		chargeLifetime: chargeLifetime,
		gatewayTimeout: gatewayTimeout,
		logger:         logger,
	}
}

// Skip reasons reported by the payment settlement steps.
const (
	skipAlreadyApproved = "payment already approved"
	skipAlreadyRejected = "payment already rejected"
	skipSettledDate     = "billing date already settled"
)

type chargeResult struct {
	Payment *payment.Payment
	Created bool
	Reused  bool
	// ExpiredPrevious means an old pending charge was closed first.
	ExpiredPrevious bool
	// Renewed means the old pending charge had been paid; its approval was
	// applied and no new charge is needed.
	Renewed bool
}

// EnsureCharge returns a payable checkout for the subscription's current due date.
func (m *ChargeManager) EnsureCharge(ctx context.Context, sub *subscription.Subscription, owner *tenant.Tenant, now time.Time) (*chargeResult, error) {
	due := sub.NextBillingDate()
	if due == nil {
		return nil, fmt.Errorf("subscription %d has no billing date", sub.ID())
	}

	res := &chargeResult{}
	pending, err := m.paymentRepo.GetPendingBySubscriptionID(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}

	var p *payment.Payment
	if pending != nil {
		switch {
		case pending.IsReusable(now):
			res.Payment = pending
			res.Reused = true
			return res, nil
		case pending.ChargeID() == nil && !pending.IsExpired(now):
			// an earlier attempt stored the payment but never got a charge back
			p = pending
		default:
			renewed, err := m.closeStale(ctx, pending, now, "renewal")
			if err != nil {
				return nil, err
			}
			if renewed {
				res.Renewed = true
				return res, nil
			}
			res.ExpiredPrevious = true
		}
	}

	if p == nil {
		p, err = payment.NewRenewalPayment(sub.ID(), sub.Price(), sub.BillingCycle(), *due, now, m.chargeLifetime)
		if err != nil {
			return nil, err
		}
		if err := m.paymentRepo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create renewal payment: %w", err)
		}
	}

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	resp, err := m.gateway.CreateRenewalCharge(gwCtx, paymentgateway.CreateChargeRequest{
		IdempotencyKey: chargeIdempotencyKey(sub.ID(), *due, p.OrderNo()),
		OrderNo:        p.OrderNo(),
		SubscriptionID: sub.ID(),
		TenantID:       sub.TenantID(),
		Amount:         p.Amount().AmountMinor(),
		Currency:       p.Amount().Currency(),
		Description:    chargeDescription(sub.PlanTier(), sub.BillingCycle(), *due),
		CustomerEmail:  owner.ContactEmail(),
		ExpiresAt:      p.ExpiresAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal charge: %w", err)
	}

	if err := p.AttachCharge(resp.ChargeID, resp.PreferenceID, resp.CheckoutURL, now); err != nil {
		return nil, err
	}
	p.LimitExpiry(resp.ExpiresAt, now)
	if err := m.paymentRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store renewal charge: %w", err)
	}

	m.logger.Infow("renewal charge created",
		"subscription_id", sub.ID(),
		"payment_id", p.ID(),
		"order_no", p.OrderNo(),
		"charge_id", resp.ChargeID,
		"due", *due,
	)
	res.Payment = p
	res.Created = true
	return res, nil
}

// closeStale settles a pending charge whose checkout window closed. It asks
// the gateway first so a late payment is applied instead of discarded.
func (m *ChargeManager) closeStale(ctx context.Context, p *payment.Payment, now time.Time, source string) (renewed bool, err error) {
	if p.ChargeID() != nil {
		st, err := m.chargeStatus(ctx, *p.ChargeID())
		switch {
		case err == nil && st.Status.IsApproved():
			// the payment is approved either way; renewed only if it moved the subscription
			res, err := m.ApplyApproval(ctx, p.SubscriptionID(), p.ID(), now, source)
			if err != nil {
				return false, err
			}
			return res.Applied(), nil
		case err != nil && !errors.Is(err, paymentgateway.ErrChargeNotFound):
			return false, err
		}
	}

	changed, err := p.MarkRejected("checkout expired", now)
	if err != nil {
		if errors.Is(err, payment.ErrAlreadyApproved) {
			return false, nil
		}
		return false, err
	}
	if !changed {
		return false, nil
	}
	if err := m.paymentRepo.Update(ctx, p); err != nil {
		return false, fmt.Errorf("failed to expire payment %d: %w", p.ID(), err)
	}
	m.logger.Infow("pending renewal charge expired",
		"payment_id", p.ID(),
		"order_no", p.OrderNo(),
		"subscription_id", p.SubscriptionID(),
	)
	return false, nil
}

// Reconcile applies money the subscription has not absorbed yet: a payment
// already approved locally, or a pending charge the gateway reports as paid
// or rejected. It returns nil when there was nothing to settle.
func (m *ChargeManager) Reconcile(ctx context.Context, sub *subscription.Subscription, now time.Time, source string) (*TransitionResult, error) {
	latest, err := m.paymentRepo.GetLatestApprovedBySubscriptionID(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to load approved payment: %w", err)
	}
	if latest != nil && latest.PaidAt() != nil && unabsorbed(sub.Snapshot(), *latest.PaidAt()) {
		res, err := m.absorbApproved(ctx, sub.ID(), latest.ID(), now, source)
		if err != nil || res.Applied() {
			return res, err
		}
	}

	pending, err := m.paymentRepo.GetPendingBySubscriptionID(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}
	if pending == nil || pending.ChargeID() == nil {
		return nil, nil
	}

	st, err := m.chargeStatus(ctx, *pending.ChargeID())
	if err != nil {
		if errors.Is(err, paymentgateway.ErrChargeNotFound) {
			m.logger.Warnw("pending charge unknown to gateway",
				"payment_id", pending.ID(), "charge_id", *pending.ChargeID())
			return nil, nil
		}
		return nil, err
	}
	switch {
	case st.Status.IsApproved():
		return m.ApplyApproval(ctx, sub.ID(), pending.ID(), now, source)
	case st.Status.IsFinal():
		return m.ApplyRejection(ctx, sub.ID(), pending.ID(), "rejected by gateway", now, source)
	}
	return nil, nil
}

// ApplyApproval marks the payment approved and renews the subscription in
// one transaction. A payment that was already approved is a replay and
// leaves the subscription alone.
func (m *ChargeManager) ApplyApproval(ctx context.Context, subscriptionID, paymentID uint, now time.Time, source string) (*TransitionResult, error) {
	return m.transitioner.Transition(ctx, TransitionRequest{
		SubscriptionID: subscriptionID,
		Source:         source,
		Input:          subscription.Input{Trigger: subscription.TriggerPaymentApproved, Now: now, PaidAt: now},
		Prepare: func(txCtx context.Context, snap subscription.Snapshot) (subscription.Input, string, error) {
			in := subscription.Input{Trigger: subscription.TriggerPaymentApproved, Now: now, PaidAt: now}
			p, err := m.paymentRepo.GetByID(txCtx, paymentID)
			if err != nil {
				return in, "", err
			}
			changed, err := p.MarkApproved(now, now)
			if err != nil {
				return in, "", err
			}
			if !changed {
				return in, skipAlreadyApproved, nil
			}
			if err := m.paymentRepo.Update(txCtx, p); err != nil {
				return in, "", err
			}
			in.PaidAt = *p.PaidAt()
			if superseded(snap, p) {
				m.logger.Warnw("approved payment covers an already settled billing date",
					"subscription_id", snap.ID,
					"payment_id", p.ID(),
					"period_due", p.PeriodDue(),
				)
				return in, skipSettledDate, nil
			}
			return in, "", nil
		},
	})
}

// ApplyRejection closes the payment as rejected and records it on the subscription.
func (m *ChargeManager) ApplyRejection(ctx context.Context, subscriptionID, paymentID uint, reason string, now time.Time, source string) (*TransitionResult, error) {
	return m.transitioner.Transition(ctx, TransitionRequest{
		SubscriptionID: subscriptionID,
		Source:         source,
		Input:          subscription.Input{Trigger: subscription.TriggerPaymentRejected, Now: now},
		Prepare: func(txCtx context.Context, snap subscription.Snapshot) (subscription.Input, string, error) {
			in := subscription.Input{Trigger: subscription.TriggerPaymentRejected, Now: now}
			p, err := m.paymentRepo.GetByID(txCtx, paymentID)
			if err != nil {
				return in, "", err
			}
			changed, err := p.MarkRejected(reason, now)
			if errors.Is(err, payment.ErrAlreadyApproved) {
				return in, skipAlreadyApproved, nil
			}
			if err != nil {
				return in, "", err
			}
			if !changed {
				return in, skipAlreadyRejected, nil
			}
			if err := m.paymentRepo.Update(txCtx, p); err != nil {
				return in, "", err
			}
			return in, "", nil
		},
	})
}

func (m *ChargeManager) absorbApproved(ctx context.Context, subscriptionID, paymentID uint, now time.Time, source string) (*TransitionResult, error) {
	return m.transitioner.Transition(ctx, TransitionRequest{
		SubscriptionID: subscriptionID,
		Source:         source,
		Prepare: func(txCtx context.Context, snap subscription.Snapshot) (subscription.Input, string, error) {
			in := subscription.Input{Trigger: subscription.TriggerPaymentApproved, Now: now}
			p, err := m.paymentRepo.GetByID(txCtx, paymentID)
			if err != nil {
				return in, "", err
			}
			if !p.Status().IsApproved() || p.PaidAt() == nil {
				return in, "payment is not approved", nil
			}
			if superseded(snap, p) {
				return in, skipSettledDate, nil
			}
			in.PaidAt = *p.PaidAt()
			return in, "", nil
		},
	})
}

func (m *ChargeManager) chargeStatus(ctx context.Context, chargeID string) (*paymentgateway.ChargeStatus, error) {
	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	return m.gateway.GetChargeStatus(gwCtx, chargeID)
}

// unabsorbed reports whether an approval at paidAt is newer than anything the
// subscription has applied.
func unabsorbed(snap subscription.Snapshot, paidAt time.Time) bool {
	if snap.CurrentPeriodStart != nil && !paidAt.After(*snap.CurrentPeriodStart) {
		return false
	}
	last := snap.Metadata.LastPaidAt
	return last == nil || paidAt.After(*last)
}

// superseded reports whether the payment pays for a billing date the
// subscription has already moved past. A suspended subscription is never
// past its missed date.
func superseded(snap subscription.Snapshot, p *payment.Payment) bool {
	if snap.Status == subvo.StatusSuspended || snap.NextBillingDate == nil {
		return false
	}
	due := p.PeriodDue()
	return due.Before(*snap.NextBillingDate) && !biztime.SameDay(due, *snap.NextBillingDate)
}

func chargeIdempotencyKey(subscriptionID uint, due time.Time, orderNo string) string {
	return fmt.Sprintf("renewal-%d-%s-%s", subscriptionID, due.UTC().Format("20060102"), orderNo)
}

func chargeDescription(tier subvo.PlanTier, cycle subvo.BillingCycle, due time.Time) string {
	return fmt.Sprintf("Bookwise %s plan, %s renewal due %s", tier, cycle, biztime.ToBizTimezone(due).Format("2006-01-02"))
}
