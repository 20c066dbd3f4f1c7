package mappers

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
)

func SubscriptionToModel(s *subscription.Subscription) *models.SubscriptionModel {
	return &models.SubscriptionModel{
		ID:                 s.ID(),
		TenantID:           s.TenantID(),
		PlanTier:           s.PlanTier().String(),
		BillingCycle:       s.BillingCycle().String(),
		PriceMinor:         s.Price().AmountMinor(),
		Currency:           s.Price().Currency(),
		Status:             s.Status().String(),
		NextBillingDate:    s.NextBillingDate(),
		CurrentPeriodStart: s.CurrentPeriodStart(),
		Metadata:           datatypes.JSONMap(s.Metadata().ToMap()),
		Version:            s.Version(),
		CreatedAt:          s.CreatedAt(),
		UpdatedAt:          s.UpdatedAt(),
	}
}

func SubscriptionToDomain(m *models.SubscriptionModel) (*subscription.Subscription, error) {
	if m == nil {
		return nil, nil
	}
	status, err := vo.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", m.ID, err)
	}
	tier, err := vo.ParsePlanTier(m.PlanTier)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", m.ID, err)
	}
	cycle, err := vo.ParseBillingCycle(m.BillingCycle)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", m.ID, err)
	}

	return subscription.ReconstructSubscription(
		m.ID,
		m.TenantID,
		tier,
		cycle,
		vo.NewMoney(m.PriceMinor, m.Currency),
		status,
		utcPtr(m.NextBillingDate),
		utcPtr(m.CurrentPeriodStart),
		subscription.ParseMetadata(m.Metadata),
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

func SubscriptionsToDomain(ms []models.SubscriptionModel) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(ms))
	for i := range ms {
		s, err := SubscriptionToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
