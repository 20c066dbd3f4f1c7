package migration

import (
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
)

// AutoMigrateModels lists every table the billing engine owns.
func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.TenantModel{},
		&models.SubscriptionModel{},
		&models.PaymentModel{},
	}
}
