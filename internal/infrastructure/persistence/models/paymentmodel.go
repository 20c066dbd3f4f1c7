package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

// PaymentModel is one renewal attempt. charge_id is unique so a gateway
// notification maps to at most one row.
type PaymentModel struct {
	ID             uint      `gorm:"primarykey"`
	OrderNo        string    `gorm:"uniqueIndex;not null;size:64"`
	SubscriptionID uint      `gorm:"not null;index:idx_payment_subscription_status,priority:1"`
	AmountMinor    int64     `gorm:"not null"`
	Currency       string    `gorm:"not null;size:3"`
	BillingCycle   string    `gorm:"not null;size:20"`
	Status         string    `gorm:"not null;size:20;index:idx_payment_subscription_status,priority:2;index:idx_payment_status_expires,priority:1"`
	PeriodDue      time.Time `gorm:"not null"`
	ChargeID       *string   `gorm:"uniqueIndex;size:255"`
	PreferenceID   *string   `gorm:"size:255"`
	CheckoutURL    *string   `gorm:"size:1024"`
	PaidAt         *time.Time
	ExpiresAt      time.Time `gorm:"not null;index:idx_payment_status_expires,priority:2"`
	FailureReason  string    `gorm:"size:255"`
	Version        int       `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (PaymentModel) TableName() string {
	return constants.TablePayments
}

func (p *PaymentModel) BeforeCreate(tx *gorm.DB) error {
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}
