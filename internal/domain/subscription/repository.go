package subscription

import (
	"context"
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Repository persists subscriptions. Update must fail with ErrVersionConflict
// when the stored version is not the one the aggregate was loaded at.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uint) (*Subscription, error)
	GetByTenantID(ctx context.Context, tenantID uint) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error

	// FindOverdue returns paid subscriptions in statuses whose next billing date is before now.
	FindOverdue(ctx context.Context, now time.Time, statuses ...vo.SubscriptionStatus) ([]*Subscription, error)
	// FindDueWithin returns ACTIVE paid subscriptions with now < next billing date <= until.
	FindDueWithin(ctx context.Context, now, until time.Time) ([]*Subscription, error)
	// FindByStatus returns paid subscriptions in the given statuses.
	FindByStatus(ctx context.Context, statuses ...vo.SubscriptionStatus) ([]*Subscription, error)
}
