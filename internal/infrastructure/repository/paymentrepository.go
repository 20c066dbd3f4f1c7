package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/mappers"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
	"github.com/bookwise-inc/bookwise/internal/shared/db"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	model := mappers.PaymentToModel(p)
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return p.SetID(model.ID)
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	model := mappers.PaymentToModel(p)

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]interface{}{
			"status":         model.Status,
			"charge_id":      model.ChargeID,
			"preference_id":  model.PreferenceID,
			"checkout_url":   model.CheckoutURL,
			"paid_at":        model.PaidAt,
			"expires_at":     model.ExpiresAt,
			"failure_reason": model.FailureReason,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %d: %w", model.ID, payment.ErrVersionConflict)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) GetByChargeID(ctx context.Context, chargeID string) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := db.GetTxFromContext(ctx, r.db).Where("charge_id = ?", chargeID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by charge_id: %w", err)
	}
	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) GetPendingBySubscriptionID(ctx context.Context, subscriptionID uint) (*payment.Payment, error) {
	var model models.PaymentModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND status = ?", subscriptionID, vo.PaymentStatusPending.String()).
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) GetLatestApprovedBySubscriptionID(ctx context.Context, subscriptionID uint) (*payment.Payment, error) {
	var model models.PaymentModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND status = ? AND paid_at IS NOT NULL", subscriptionID, vo.PaymentStatusApproved.String()).
		Order("paid_at DESC, id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest approved payment: %w", err)
	}
	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]*payment.Payment, error) {
	var rows []models.PaymentModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("status = ? AND expires_at <= ?", vo.PaymentStatusPending.String(), now).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired payments: %w", err)
	}
	return mappers.PaymentsToDomain(rows)
}
