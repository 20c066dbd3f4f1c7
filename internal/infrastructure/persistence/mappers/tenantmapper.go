package mappers

import (
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
)

func TenantToModel(t *tenant.Tenant) *models.TenantModel {
	return &models.TenantModel{
		ID:           t.ID(),
		Name:         t.Name(),
		ContactEmail: t.ContactEmail(),
		PlanTier:     t.PlanTier().String(),
		QuotaLimit:   t.QuotaLimit(),
		CreatedAt:    t.CreatedAt(),
		UpdatedAt:    t.UpdatedAt(),
	}
}

func TenantToDomain(m *models.TenantModel) *tenant.Tenant {
	if m == nil {
		return nil
	}
	return tenant.ReconstructTenant(m.ID, m.Name, m.ContactEmail, subvo.PlanTier(m.PlanTier), m.QuotaLimit, m.CreatedAt, m.UpdatedAt)
}
