package tenant

import (
	"context"
	"errors"

	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

var ErrTenantNotFound = errors.New("tenant not found")

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uint) (*Tenant, error)
	// UpdatePlan sets the effective plan tier and booking quota.
	UpdatePlan(ctx context.Context, id uint, tier subvo.PlanTier, quota int) error
}
