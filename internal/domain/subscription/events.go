package subscription

import (
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// StatusChangedEvent is published after a committed transition so other
// services can refresh their view of the tenant's plan.
type StatusChangedEvent struct {
	SubscriptionID  uint                  `json:"subscription_id"`
	TenantID        uint                  `json:"tenant_id"`
	From            vo.SubscriptionStatus `json:"from"`
	To              vo.SubscriptionStatus `json:"to"`
	Trigger         Trigger               `json:"trigger"`
	Reason          string                `json:"reason"`
	NextBillingDate *time.Time            `json:"next_billing_date,omitempty"`
	Version         int                   `json:"version"`
	OccurredAt      time.Time             `json:"occurred_at"`
}

// NewStatusChangedEvent builds the event for an outcome that moved the status
// or the billing date.
func NewStatusChangedEvent(o Outcome, trigger Trigger, version int, at time.Time) StatusChangedEvent {
	return StatusChangedEvent{
		SubscriptionID:  o.Next.ID,
		TenantID:        o.Next.TenantID,
		From:            o.From,
		To:              o.To,
		Trigger:         trigger,
		Reason:          o.Reason,
		NextBillingDate: cloneTime(o.Next.NextBillingDate),
		Version:         version,
		OccurredAt:      at,
	}
}
