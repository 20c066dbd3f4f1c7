package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

// SubscriptionModel is the row behind a tenant's subscription. Metadata is
// the audit side record; its keys are owned by the domain package.
type SubscriptionModel struct {
	ID                 uint       `gorm:"primarykey"`
	TenantID           uint       `gorm:"not null;uniqueIndex:uk_subscription_tenant"`
	PlanTier           string     `gorm:"not null;size:20"`
	BillingCycle       string     `gorm:"not null;size:20"`
	PriceMinor         int64      `gorm:"not null;default:0"`
	Currency           string     `gorm:"not null;size:3;default:''"`
	Status             string     `gorm:"not null;size:20;index:idx_subscription_status_due,priority:1"`
	NextBillingDate    *time.Time `gorm:"index:idx_subscription_status_due,priority:2"`
	CurrentPeriodStart *time.Time
	Metadata           datatypes.JSONMap `gorm:"type:json"`
	Version            int               `gorm:"not null;default:1"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (SubscriptionModel) TableName() string {
	return constants.TableSubscriptions
}

func (s *SubscriptionModel) BeforeCreate(tx *gorm.DB) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}
