package payment

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	// Update fails with ErrVersionConflict when another writer got there first.
	Update(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id uint) (*Payment, error)
	// GetByChargeID returns ErrPaymentNotFound when no payment carries the charge.
	GetByChargeID(ctx context.Context, chargeID string) (*Payment, error)
	// GetPendingBySubscriptionID returns the newest PENDING payment, or nil, nil.
	GetPendingBySubscriptionID(ctx context.Context, subscriptionID uint) (*Payment, error)
	// GetLatestApprovedBySubscriptionID returns the approval with the latest paid_at, or nil, nil.
	GetLatestApprovedBySubscriptionID(ctx context.Context, subscriptionID uint) (*Payment, error)
	// FindExpiredPending returns PENDING payments whose checkout window closed before now.
	FindExpiredPending(ctx context.Context, now time.Time) ([]*Payment, error)
}
