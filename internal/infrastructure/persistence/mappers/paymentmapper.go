package mappers

import (
	"fmt"

	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/persistence/models"
)

func PaymentToModel(p *payment.Payment) *models.PaymentModel {
	return &models.PaymentModel{
		ID:             p.ID(),
		OrderNo:        p.OrderNo(),
		SubscriptionID: p.SubscriptionID(),
		AmountMinor:    p.Amount().AmountMinor(),
		Currency:       p.Amount().Currency(),
		BillingCycle:   p.BillingCycle().String(),
		Status:         p.Status().String(),
		PeriodDue:      p.PeriodDue(),
		ChargeID:       p.ChargeID(),
		PreferenceID:   p.PreferenceID(),
		CheckoutURL:    p.CheckoutURL(),
		PaidAt:         p.PaidAt(),
		ExpiresAt:      p.ExpiresAt(),
		FailureReason:  p.FailureReason(),
		Version:        p.Version(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}

func PaymentToDomain(m *models.PaymentModel) (*payment.Payment, error) {
	if m == nil {
		return nil, nil
	}
	status, err := vo.ParsePaymentStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", m.ID, err)
	}
	cycle, err := subvo.ParseBillingCycle(m.BillingCycle)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", m.ID, err)
	}
	return payment.ReconstructPayment(
		m.ID,
		m.OrderNo,
		m.SubscriptionID,
		subvo.NewMoney(m.AmountMinor, m.Currency),
		cycle,
		status,
		m.PeriodDue.UTC(),
		m.ChargeID,
		m.PreferenceID,
		m.CheckoutURL,
		utcPtr(m.PaidAt),
		m.ExpiresAt.UTC(),
		m.FailureReason,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

func PaymentsToDomain(ms []models.PaymentModel) ([]*payment.Payment, error) {
	out := make([]*payment.Payment, 0, len(ms))
	for i := range ms {
		p, err := PaymentToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
