package models

import (
	"time"

	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

type TenantModel struct {
	ID           uint   `gorm:"primarykey"`
	Name         string `gorm:"not null;size:255"`
	ContactEmail string `gorm:"not null;size:255"`
	PlanTier     string `gorm:"not null;size:20;default:free"`
	QuotaLimit   int    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TenantModel) TableName() string {
	return constants.TableTenants
}
