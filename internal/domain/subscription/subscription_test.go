package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

func TestNewFreeSubscription(t *testing.T) {
	sub, err := NewFreeSubscription(5, t0)
	require.NoError(t, err)

	assert.Equal(t, vo.StatusFree, sub.Status())
	assert.Nil(t, sub.NextBillingDate())
	assert.Equal(t, 1, sub.Version())

	_, err = NewFreeSubscription(0, t0)
	assert.Error(t, err)
}

func TestNewPaidSubscription(t *testing.T) {
	sub, err := NewPaidSubscription(5, vo.PlanTierBasic, vo.BillingCycleMonthly, vo.NewMoney(2900, "USD"), t0)
	require.NoError(t, err)

	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, t0.AddDate(0, 1, 0), *sub.NextBillingDate())
	assert.Equal(t, t0, *sub.CurrentPeriodStart())

	_, err = NewPaidSubscription(5, vo.PlanTierFree, vo.BillingCycleMonthly, vo.NewMoney(2900, "USD"), t0)
	assert.Error(t, err)
	_, err = NewPaidSubscription(5, vo.PlanTierBasic, vo.BillingCycleMonthly, vo.NewMoney(0, "USD"), t0)
	assert.Error(t, err)
}

func TestReconstructSubscription_RequiresBillingDateForPaidStatus(t *testing.T) {
	_, err := ReconstructSubscription(1, 2, vo.PlanTierBasic, vo.BillingCycleMonthly, vo.NewMoney(2900, "USD"),
		vo.StatusActive, nil, nil, Metadata{}, 1, t0, t0)
	assert.Error(t, err)
}

func TestSubscription_ApplyOutcome(t *testing.T) {
	sub, err := NewPaidSubscription(5, vo.PlanTierBasic, vo.BillingCycleMonthly, vo.NewMoney(2900, "USD"), t0)
	require.NoError(t, err)
	require.NoError(t, sub.SetID(1))

	now := sub.NextBillingDate().Add(2 * day)
	out := Apply(sub.Snapshot(), Input{Trigger: TriggerTick, Now: now}, DefaultPolicy())
	require.True(t, out.Changed)

	require.NoError(t, sub.Apply(out, now))
	assert.Equal(t, vo.StatusPaymentFailed, sub.Status())
	assert.Equal(t, 2, sub.Version())
	assert.Equal(t, now, sub.UpdatedAt())

	// the same outcome cannot be applied twice
	err = sub.Apply(out, now)
	assert.True(t, errors.Is(err, ErrVersionConflict))
}

func TestSubscription_ApplyNoopKeepsVersion(t *testing.T) {
	sub, err := NewPaidSubscription(5, vo.PlanTierBasic, vo.BillingCycleMonthly, vo.NewMoney(2900, "USD"), t0)
	require.NoError(t, err)
	require.NoError(t, sub.SetID(1))

	out := Apply(sub.Snapshot(), Input{Trigger: TriggerTick, Now: t0.Add(time.Hour)}, DefaultPolicy())
	require.NoError(t, sub.Apply(out, t0.Add(time.Hour)))
	assert.Equal(t, 1, sub.Version())
}
