package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Payment is one renewal attempt for a subscription.
type Payment struct {
	id             uint
	orderNo        string
	subscriptionID uint
	amount         subvo.Money
	billingCycle   subvo.BillingCycle
	status         vo.PaymentStatus

	// periodDue is the billing date this charge pays for.
	periodDue time.Time

	chargeID     *string
	preferenceID *string
	checkoutURL  *string

	paidAt        *time.Time
	expiresAt     time.Time
	failureReason string

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// NewRenewalPayment opens a PENDING renewal attempt that stays usable for lifetime.
func NewRenewalPayment(subscriptionID uint, amount subvo.Money, cycle subvo.BillingCycle, periodDue, now time.Time, lifetime time.Duration) (*Payment, error) {
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	if !cycle.IsValid() {
		return nil, fmt.Errorf("invalid billing cycle %q", cycle)
	}
	return &Payment{
		orderNo:        newOrderNo(now),
		subscriptionID: subscriptionID,
		amount:         amount,
		billingCycle:   cycle,
		status:         vo.PaymentStatusPending,
		periodDue:      periodDue.UTC(),
		expiresAt:      now.Add(lifetime),
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

func newOrderNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("RNW%s%s", now.UTC().Format("20060102"), suffix)
}

// ReconstructPayment rebuilds a payment from storage.
func ReconstructPayment(
	id uint,
	orderNo string,
	subscriptionID uint,
	amount subvo.Money,
	cycle subvo.BillingCycle,
	status vo.PaymentStatus,
	periodDue time.Time,
	chargeID, preferenceID, checkoutURL *string,
	paidAt *time.Time,
	expiresAt time.Time,
	failureReason string,
	version int,
	createdAt, updatedAt time.Time,
) (*Payment, error) {
	if id == 0 {
		return nil, fmt.Errorf("payment ID cannot be zero")
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid payment status %q", status)
	}
	return &Payment{
		id:             id,
		orderNo:        orderNo,
		subscriptionID: subscriptionID,
		amount:         amount,
		billingCycle:   cycle,
		status:         status,
		periodDue:      periodDue,
		chargeID:       chargeID,
		preferenceID:   preferenceID,
		checkoutURL:    checkoutURL,
		paidAt:         paidAt,
		expiresAt:      expiresAt,
		failureReason:  failureReason,
		version:        version,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}, nil
}

// AttachCharge records the gateway references returned when the charge was created.
func (p *Payment) AttachCharge(chargeID, preferenceID, checkoutURL string, now time.Time) error {
	if chargeID == "" {
		return fmt.Errorf("charge ID is required")
	}
	if p.chargeID != nil && *p.chargeID != chargeID {
		return fmt.Errorf("payment %s already bound to charge %s", p.orderNo, *p.chargeID)
	}
	p.chargeID = &chargeID
	p.preferenceID = &preferenceID
	p.checkoutURL = &checkoutURL
	p.updatedAt = now
	p.version++
	return nil
}

// LimitExpiry pulls the checkout window in to at when the gateway closes the
// charge earlier than requested. It never extends the window.
func (p *Payment) LimitExpiry(at, now time.Time) bool {
	if at.IsZero() || !at.Before(p.expiresAt) {
		return false
	}
	p.expiresAt = at.UTC()
	p.updatedAt = now
	return true
}

// MarkApproved records a gateway-confirmed payment. It reports false when the
// payment was already approved, which makes replays harmless. A charge closed
// locally as rejected can still be approved: the gateway is authoritative
// about money received.
func (p *Payment) MarkApproved(paidAt, now time.Time) (bool, error) {
	if p.status.IsApproved() {
		return false, nil
	}
	paid := paidAt.UTC().Truncate(time.Millisecond)
	p.status = vo.PaymentStatusApproved
	p.paidAt = &paid
	p.failureReason = ""
	p.updatedAt = now
	p.version++
	return true, nil
}

// MarkRejected closes a pending payment. Rejecting an approved payment is an error.
func (p *Payment) MarkRejected(reason string, now time.Time) (bool, error) {
	switch p.status {
	case vo.PaymentStatusRejected:
		return false, nil
	case vo.PaymentStatusApproved:
		return false, ErrAlreadyApproved
	}
	p.status = vo.PaymentStatusRejected
	p.failureReason = reason
	p.updatedAt = now
	p.version++
	return true, nil
}

// IsExpired reports whether a pending payment outlived its checkout window.
func (p *Payment) IsExpired(now time.Time) bool {
	return p.status.IsPending() && !now.Before(p.expiresAt)
}

// IsReusable reports whether the checkout link can be sent again.
func (p *Payment) IsReusable(now time.Time) bool {
	return p.status.IsPending() && !p.IsExpired(now) && p.checkoutURL != nil && *p.checkoutURL != ""
}

func (p *Payment) SetID(id uint) error {
	if p.id != 0 {
		return fmt.Errorf("payment ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("payment ID cannot be zero")
	}
	p.id = id
	return nil
}

func (p *Payment) ID() uint                         { return p.id }
func (p *Payment) OrderNo() string                  { return p.orderNo }
func (p *Payment) SubscriptionID() uint             { return p.subscriptionID }
func (p *Payment) Amount() subvo.Money              { return p.amount }
func (p *Payment) BillingCycle() subvo.BillingCycle { return p.billingCycle }
func (p *Payment) Status() vo.PaymentStatus         { return p.status }
func (p *Payment) PeriodDue() time.Time             { return p.periodDue }
func (p *Payment) ChargeID() *string                { return p.chargeID }
func (p *Payment) PreferenceID() *string            { return p.preferenceID }
func (p *Payment) CheckoutURL() *string             { return p.checkoutURL }
func (p *Payment) PaidAt() *time.Time               { return p.paidAt }
func (p *Payment) ExpiresAt() time.Time             { return p.expiresAt }
func (p *Payment) FailureReason() string            { return p.failureReason }
func (p *Payment) Version() int                     { return p.version }
func (p *Payment) CreatedAt() time.Time             { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time             { return p.updatedAt }
