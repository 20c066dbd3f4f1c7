// Package notification delivers tenant-facing billing messages after the
// state change that caused them has been committed.
package notification

import (
	"context"
	"time"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Notification is one message for a tenant contact.
type Notification struct {
	Kind           subscription.NotificationKind
	TenantID       uint
	SubscriptionID uint
	TenantName     string
	ContactEmail   string

	PlanTier    subvo.PlanTier
	Amount      subvo.Money
	DueDate     *time.Time
	DaysLeft    int
	CheckoutURL string
	Reason      string
}

// Sender delivers one notification. Failures are logged by the dispatcher and
// never reach the billing transaction.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Queue accepts notifications without blocking the caller.
type Queue interface {
	Enqueue(n Notification) bool
}
