package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/mappers"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/db"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	model := mappers.TenantToModel(t)
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	t.SetID(model.ID)
	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id uint) (*tenant.Tenant, error) {
	var model models.TenantModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return mappers.TenantToDomain(&model), nil
}

func (r *TenantRepository) UpdatePlan(ctx context.Context, id uint, tier subvo.PlanTier, quota int) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.TenantModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"plan_tier":   tier.String(),
			"quota_limit": quota,
			"updated_at":  biztime.NowUTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tenant plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := db.GetTxFromContext(ctx, r.db).Model(&models.TenantModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check tenant: %w", err)
		}
		if n == 0 {
			return tenant.ErrTenantNotFound
		}
	}
	return nil
}
