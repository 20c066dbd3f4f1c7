package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/mappers"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
	"github.com/bookwise-inc/bookwise/internal/shared/db"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewSubscriptionRepository(db *gorm.DB, logger logger.Interface) subscription.Repository {
	return &SubscriptionRepositoryImpl{db: db, logger: logger}
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, sub *subscription.Subscription) error {
	model := mappers.SubscriptionToModel(sub)
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub.SetID(model.ID)
}

func (r *SubscriptionRepositoryImpl) GetByID(ctx context.Context, id uint) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return mappers.SubscriptionToDomain(&model)
}

func (r *SubscriptionRepositoryImpl) GetByTenantID(ctx context.Context, tenantID uint) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).Where("tenant_id = ?", tenantID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription by tenant: %w", err)
	}
	return mappers.SubscriptionToDomain(&model)
}

// Update writes the aggregate only if the stored row is still at the version
// it was loaded with.
func (r *SubscriptionRepositoryImpl) Update(ctx context.Context, sub *subscription.Subscription) error {
	model := mappers.SubscriptionToModel(sub)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]interface{}{
			"status":               model.Status,
			"next_billing_date":    model.NextBillingDate,
			"current_period_start": model.CurrentPeriodStart,
			"metadata":             model.Metadata,
			"version":              model.Version,
			"updated_at":           model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		r.logger.Warnw("subscription update lost optimistic lock",
			"subscription_id", model.ID, "expected_version", model.Version-1)
		return fmt.Errorf("subscription %d: %w", model.ID, subscription.ErrVersionConflict)
	}
	return nil
}

func (r *SubscriptionRepositoryImpl) FindOverdue(ctx context.Context, now time.Time, statuses ...vo.SubscriptionStatus) ([]*subscription.Subscription, error) {
	var rows []models.SubscriptionModel
	err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.StatusIn(statuses...), db.DueBefore(now), paidOnly).
		Order("next_billing_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue subscriptions: %w", err)
	}
	return mappers.SubscriptionsToDomain(rows)
}

func (r *SubscriptionRepositoryImpl) FindDueWithin(ctx context.Context, now, until time.Time) ([]*subscription.Subscription, error) {
	var rows []models.SubscriptionModel
	err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.StatusIn(vo.StatusActive), db.DueWithin(now, until), paidOnly).
		Order("next_billing_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming renewals: %w", err)
	}
	return mappers.SubscriptionsToDomain(rows)
}

func (r *SubscriptionRepositoryImpl) FindByStatus(ctx context.Context, statuses ...vo.SubscriptionStatus) ([]*subscription.Subscription, error) {
	var rows []models.SubscriptionModel
	err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.StatusIn(statuses...), paidOnly).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions by status: %w", err)
	}
	return mappers.SubscriptionsToDomain(rows)
}

func paidOnly(tx *gorm.DB) *gorm.DB {
	return tx.Where("plan_tier <> ?", vo.PlanTierFree.String())
}
