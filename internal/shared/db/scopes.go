package db

import (
	"time"

	"gorm.io/gorm"
)

// StatusIn filters rows whose status column is one of statuses.
func StatusIn[T ~string](statuses ...T) func(*gorm.DB) *gorm.DB {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", values)
	}
}

// DueBefore filters rows whose next_billing_date is set and earlier than t.
func DueBefore(t time.Time) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("next_billing_date IS NOT NULL AND next_billing_date < ?", t)
	}
}

// DueWithin filters rows with from < next_billing_date <= to.
func DueWithin(from, to time.Time) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("next_billing_date > ? AND next_billing_date <= ?", from, to)
	}
}
