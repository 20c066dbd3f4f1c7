package subscription

import (
	"fmt"
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Subscription is a tenant's billing agreement. Each tenant owns exactly one,
// created as FREE and never deleted.
type Subscription struct {
	id                 uint
	tenantID           uint
	planTier           vo.PlanTier
	billingCycle       vo.BillingCycle
	price              vo.Money
	status             vo.SubscriptionStatus
	nextBillingDate    *time.Time
	currentPeriodStart *time.Time
	metadata           Metadata
	version            int
	createdAt          time.Time
	updatedAt          time.Time
}

// NewFreeSubscription creates the subscription every new tenant starts with.
func NewFreeSubscription(tenantID uint, now time.Time) (*Subscription, error) {
	if tenantID == 0 {
		return nil, fmt.Errorf("tenant ID is required")
	}
	return &Subscription{
		tenantID:     tenantID,
		planTier:     vo.PlanTierFree,
		billingCycle: vo.BillingCycleMonthly,
		price:        vo.NewMoney(0, ""),
		status:       vo.StatusFree,
		metadata:     Metadata{Extra: map[string]any{}},
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// NewPaidSubscription creates an ACTIVE subscription whose first period
// starts at periodStart, as after an initial checkout.
func NewPaidSubscription(tenantID uint, tier vo.PlanTier, cycle vo.BillingCycle, price vo.Money, periodStart time.Time) (*Subscription, error) {
	if tenantID == 0 {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if !tier.IsValid() || tier.IsFree() {
		return nil, fmt.Errorf("paid subscription requires a paid tier, got %q", tier)
	}
	if !cycle.IsValid() {
		return nil, fmt.Errorf("invalid billing cycle %q", cycle)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("paid subscription requires a positive price")
	}
	start := periodStart.UTC()
	next := cycle.Next(start)
	return &Subscription{
		tenantID:           tenantID,
		planTier:           tier,
		billingCycle:       cycle,
		price:              price,
		status:             vo.StatusActive,
		nextBillingDate:    &next,
		currentPeriodStart: &start,
		metadata:           Metadata{Extra: map[string]any{}},
		version:            1,
		createdAt:          start,
		updatedAt:          start,
	}, nil
}

// ReconstructSubscription rebuilds the aggregate from storage.
func ReconstructSubscription(
	id, tenantID uint,
	tier vo.PlanTier,
	cycle vo.BillingCycle,
	price vo.Money,
	status vo.SubscriptionStatus,
	nextBillingDate, currentPeriodStart *time.Time,
	metadata Metadata,
	version int,
	createdAt, updatedAt time.Time,
) (*Subscription, error) {
	if id == 0 {
		return nil, fmt.Errorf("subscription ID cannot be zero")
	}
	if !vo.ValidStatuses[status] {
		return nil, fmt.Errorf("invalid subscription status: %s", status)
	}
	if status != vo.StatusFree && status != vo.StatusCancelled && nextBillingDate == nil {
		return nil, fmt.Errorf("subscription %d in status %s has no next billing date", id, status)
	}
	if metadata.Extra == nil {
		metadata.Extra = map[string]any{}
	}
	return &Subscription{
		id:                 id,
		tenantID:           tenantID,
		planTier:           tier,
		billingCycle:       cycle,
		price:              price,
		status:             status,
		nextBillingDate:    nextBillingDate,
		currentPeriodStart: currentPeriodStart,
		metadata:           metadata,
		version:            version,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}, nil
}

func (s *Subscription) ID() uint                       { return s.id }
func (s *Subscription) TenantID() uint                 { return s.tenantID }
func (s *Subscription) PlanTier() vo.PlanTier          { return s.planTier }
func (s *Subscription) BillingCycle() vo.BillingCycle  { return s.billingCycle }
func (s *Subscription) Price() vo.Money                { return s.price }
func (s *Subscription) Status() vo.SubscriptionStatus  { return s.status }
func (s *Subscription) NextBillingDate() *time.Time    { return s.nextBillingDate }
func (s *Subscription) CurrentPeriodStart() *time.Time { return s.currentPeriodStart }
func (s *Subscription) Metadata() Metadata             { return s.metadata.Clone() }
func (s *Subscription) Version() int                   { return s.version }
func (s *Subscription) CreatedAt() time.Time           { return s.createdAt }
func (s *Subscription) UpdatedAt() time.Time           { return s.updatedAt }

func (s *Subscription) SetID(id uint) error {
	if s.id != 0 {
		return fmt.Errorf("subscription ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("subscription ID cannot be zero")
	}
	s.id = id
	return nil
}

// Snapshot returns an immutable copy for the lifecycle function.
func (s *Subscription) Snapshot() Snapshot {
	return Snapshot{
		ID:                 s.id,
		TenantID:           s.tenantID,
		PlanTier:           s.planTier,
		BillingCycle:       s.billingCycle,
		Price:              s.price,
		Status:             s.status,
		NextBillingDate:    cloneTime(s.nextBillingDate),
		CurrentPeriodStart: cloneTime(s.currentPeriodStart),
		Metadata:           s.metadata.Clone(),
		Version:            s.version,
	}
}

// Apply stores the outcome of a lifecycle step. The snapshot must have been
// taken from this same version of the aggregate.
func (s *Subscription) Apply(outcome Outcome, now time.Time) error {
	if !outcome.Changed {
		return nil
	}
	next := outcome.Next
	if next.ID != s.id || next.Version != s.version {
		return fmt.Errorf("%w: outcome computed from version %d, aggregate at %d",
			ErrVersionConflict, next.Version, s.version)
	}
	s.status = next.Status
	s.nextBillingDate = cloneTime(next.NextBillingDate)
	s.currentPeriodStart = cloneTime(next.CurrentPeriodStart)
	s.metadata = next.Metadata.Clone()
	s.version++
	s.updatedAt = now
	return nil
}
