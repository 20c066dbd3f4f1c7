package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func activeSnapshot(due time.Time) Snapshot {
	start := due.AddDate(0, -1, 0)
	return Snapshot{
		ID:                 1,
		TenantID:           10,
		PlanTier:           vo.PlanTierBasic,
		BillingCycle:       vo.BillingCycleMonthly,
		Price:              vo.NewMoney(2900, "USD"),
		Status:             vo.StatusActive,
		NextBillingDate:    &due,
		CurrentPeriodStart: &start,
		Metadata:           Metadata{Extra: map[string]any{}},
		Version:            3,
	}
}

func tick(s Snapshot, now time.Time) Outcome {
	return Apply(s, Input{Trigger: TriggerTick, Now: now}, DefaultPolicy())
}

func TestApply_TickNotDue(t *testing.T) {
	s := activeSnapshot(t0.Add(2 * day))

	out := tick(s, t0)

	assert.False(t, out.Changed)
	assert.False(t, out.Transitioned)
	assert.Equal(t, vo.StatusActive, out.To)
	assert.Equal(t, "not yet due", out.Reason)
}

func TestApply_TickOverdueStampsRetrySchedule(t *testing.T) {
	due := t0.Add(-day)
	s := activeSnapshot(due)

	out := tick(s, t0)

	require.True(t, out.Transitioned)
	assert.Equal(t, vo.StatusActive, out.From)
	assert.Equal(t, vo.StatusPaymentFailed, out.To)
	md := out.Next.Metadata
	require.NotNil(t, md.PaymentFailedAt)
	assert.Equal(t, t0, *md.PaymentFailedAt)
	assert.Equal(t, []time.Time{due.Add(day), due.Add(3 * day), due.Add(7 * day)}, md.RetrySchedule)
	require.NotNil(t, md.GraceDeadline)
	assert.Equal(t, t0.Add(10*day), *md.GraceDeadline)
	assert.Equal(t, []NotificationKind{NotifyPaymentFailed}, out.Notifications)
	assert.Empty(t, out.Effects)
}

func TestApply_TickIsIdempotentAtSameInstant(t *testing.T) {
	s := activeSnapshot(t0.Add(-day))

	first := tick(s, t0)
	require.True(t, first.Transitioned)
	first.Next.Version++

	second := tick(first.Next, t0)
	assert.False(t, second.Changed)
	assert.False(t, second.Transitioned)
}

func TestApply_LongOverdueSettlesInOneCall(t *testing.T) {
	// billing date long past and no earlier tick ran: enter payment failed,
	// every retry slot is already behind us, grace deadline is still ahead
	s := activeSnapshot(t0.Add(-20 * day))

	out := tick(s, t0)

	assert.Equal(t, vo.StatusGracePeriod, out.To)
	assert.Equal(t, []NotificationKind{NotifyPaymentFailed, NotifyGraceStarted}, out.Notifications)
	assert.Empty(t, out.Effects)

	again := tick(out.Next, t0)
	assert.False(t, again.Changed)
}

func TestApply_GraceEntryAfterLastRetrySlot(t *testing.T) {
	due := t0.Add(-day)
	pf := tick(activeSnapshot(due), t0).Next

	out := tick(pf, due.Add(7*day))

	assert.Equal(t, vo.StatusGracePeriod, out.To)
	require.NotNil(t, out.Next.Metadata.GraceStartedAt)
	assert.Empty(t, out.Effects)
}

func TestApply_SuspendsOnDayElevenExactlyOnce(t *testing.T) {
	pf := tick(activeSnapshot(t0.Add(-day)), t0).Next
	day11 := t0.Add(11 * day)

	out := tick(pf, day11)

	assert.Equal(t, vo.StatusSuspended, out.To)
	assert.True(t, out.HasEffect(EffectSuspendTenant))
	assert.Contains(t, out.Notifications, NotifySuspended)
	require.NotNil(t, out.Next.Metadata.SuspendedAt)
	assert.Equal(t, day11, *out.Next.Metadata.SuspendedAt)

	again := tick(out.Next, day11.Add(6*time.Hour))
	assert.False(t, again.Changed)
	assert.Empty(t, again.Effects)
	assert.Equal(t, day11, *again.Next.Metadata.SuspendedAt)
}

func TestApply_GraceWithRecordedSuspensionSkipsSideEffect(t *testing.T) {
	s := activeSnapshot(t0.Add(-15 * day))
	s.Status = vo.StatusGracePeriod
	suspendedAt := t0.Add(-time.Hour)
	deadline := t0.Add(-2 * time.Hour)
	s.Metadata.SuspendedAt = &suspendedAt
	s.Metadata.GraceDeadline = &deadline

	out := tick(s, t0)

	assert.Equal(t, vo.StatusSuspended, out.To)
	assert.Empty(t, out.Effects)
	assert.Equal(t, suspendedAt, *out.Next.Metadata.SuspendedAt)
}

func TestApply_SecondSuspensionKeepsHistory(t *testing.T) {
	s := activeSnapshot(t0.Add(-15 * day))
	s.Status = vo.StatusGracePeriod
	first := t0.Add(-90 * day)
	reactivated := t0.Add(-60 * day)
	deadline := t0.Add(-time.Hour)
	s.Metadata.SuspendedAt = &first
	s.Metadata.ReactivatedAt = &reactivated
	s.Metadata.GraceDeadline = &deadline

	out := tick(s, t0)

	assert.True(t, out.HasEffect(EffectSuspendTenant))
	assert.Equal(t, []time.Time{first}, out.Next.Metadata.SuspensionHistory)
	assert.Equal(t, t0, *out.Next.Metadata.SuspendedAt)
}

func TestApply_ApprovalRenewsActiveFromDueDate(t *testing.T) {
	due := t0.Add(3 * day)
	s := activeSnapshot(due)

	out := Apply(s, Input{Trigger: TriggerPaymentApproved, Now: t0, PaidAt: t0}, DefaultPolicy())

	require.True(t, out.Transitioned)
	assert.Equal(t, vo.StatusActive, out.To)
	assert.Equal(t, vo.BillingCycleMonthly.Next(due), *out.Next.NextBillingDate)
	assert.Equal(t, due, *out.Next.CurrentPeriodStart)
	assert.Equal(t, t0, *out.Next.Metadata.LastPaidAt)
	assert.Equal(t, []NotificationKind{NotifyPaymentReceived}, out.Notifications)
}

func TestApply_ApprovalRecoversPaymentFailed(t *testing.T) {
	due := t0.Add(-day)
	pf := tick(activeSnapshot(due), t0).Next
	now := t0.Add(2 * day)

	out := Apply(pf, Input{Trigger: TriggerPaymentApproved, Now: now, PaidAt: now}, DefaultPolicy())

	assert.Equal(t, vo.StatusActive, out.To)
	assert.Equal(t, vo.BillingCycleMonthly.Next(due), *out.Next.NextBillingDate)
	assert.Nil(t, out.Next.Metadata.PaymentFailedAt)
	assert.Empty(t, out.Next.Metadata.RetrySchedule)
	assert.Nil(t, out.Next.Metadata.GraceDeadline)
	assert.Empty(t, out.Effects)
}

func TestApply_ApprovalReactivatesSuspendedFromNow(t *testing.T) {
	pf := tick(activeSnapshot(t0.Add(-day)), t0).Next
	suspended := tick(pf, t0.Add(11*day)).Next
	now := t0.Add(12 * day)

	out := Apply(suspended, Input{Trigger: TriggerPaymentApproved, Now: now, PaidAt: now}, DefaultPolicy())

	assert.Equal(t, vo.StatusSuspended, out.From)
	assert.Equal(t, vo.StatusActive, out.To)
	assert.True(t, out.HasEffect(EffectRestoreTenant))
	assert.Equal(t, vo.BillingCycleMonthly.Next(now), *out.Next.NextBillingDate)
	assert.Equal(t, now, *out.Next.CurrentPeriodStart)
	assert.Equal(t, now, *out.Next.Metadata.ReactivatedAt)
	assert.False(t, out.Next.Metadata.CurrentlySuspended())
	// suspension audit survives reactivation
	assert.NotNil(t, out.Next.Metadata.SuspendedAt)
}

func TestApply_StaleApprovalIgnored(t *testing.T) {
	pf := tick(activeSnapshot(t0.Add(-day)), t0).Next
	suspended := tick(pf, t0.Add(11*day)).Next
	beforePeriod := suspended.CurrentPeriodStart.Add(-time.Hour)

	out := Apply(suspended, Input{Trigger: TriggerPaymentApproved, Now: t0.Add(12 * day), PaidAt: beforePeriod}, DefaultPolicy())

	assert.False(t, out.Changed)
	assert.Equal(t, vo.StatusSuspended, out.To)
	assert.Empty(t, out.Effects)
	assert.Contains(t, out.Reason, "stale approval")
}

func TestApply_ReplayedApprovalIgnored(t *testing.T) {
	s := activeSnapshot(t0.Add(3 * day))
	in := Input{Trigger: TriggerPaymentApproved, Now: t0, PaidAt: t0}

	first := Apply(s, in, DefaultPolicy())
	require.True(t, first.Transitioned)

	second := Apply(first.Next, Input{Trigger: TriggerPaymentApproved, Now: t0.Add(time.Minute), PaidAt: t0}, DefaultPolicy())
	assert.False(t, second.Changed)
	assert.Equal(t, *first.Next.NextBillingDate, *second.Next.NextBillingDate)
}

func TestApply_UnmanagedStatusesNeverChange(t *testing.T) {
	for _, status := range []vo.SubscriptionStatus{vo.StatusFree, vo.StatusCancelled} {
		s := activeSnapshot(t0.Add(-30 * day))
		s.Status = status

		for _, trig := range []Trigger{TriggerTick, TriggerPaymentApproved, TriggerPaymentRejected, TriggerReminderSent} {
			out := Apply(s, Input{Trigger: trig, Now: t0, PaidAt: t0}, DefaultPolicy())
			assert.False(t, out.Changed, "%s/%s", status, trig)
			assert.Equal(t, status, out.To)
		}
	}
}

func TestApply_RejectionOnlyRecordsMetadata(t *testing.T) {
	pf := tick(activeSnapshot(t0.Add(-day)), t0).Next

	out := Apply(pf, Input{Trigger: TriggerPaymentRejected, Now: t0.Add(time.Hour)}, DefaultPolicy())

	assert.True(t, out.Changed)
	assert.False(t, out.Transitioned)
	assert.Equal(t, vo.StatusPaymentFailed, out.To)
	assert.Equal(t, t0.Add(time.Hour), *out.Next.Metadata.LastRejectedAt)
	assert.Equal(t, pf.Metadata.RetrySchedule, out.Next.Metadata.RetrySchedule)
}

func TestApply_ReminderSentCounts(t *testing.T) {
	s := activeSnapshot(t0.Add(7 * day))

	out := Apply(s, Input{Trigger: TriggerReminderSent, Now: t0}, DefaultPolicy())
	out2 := Apply(out.Next, Input{Trigger: TriggerReminderSent, Now: t0.Add(4 * day), RetryAttempts: 2}, DefaultPolicy())

	assert.False(t, out.Transitioned)
	assert.Equal(t, 2, out2.Next.Metadata.ReminderCount)
	assert.Equal(t, 2, out2.Next.Metadata.RetryAttempts)
	assert.Equal(t, t0.Add(4*day), *out2.Next.Metadata.LastReminderSentAt)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := activeSnapshot(t0.Add(-day))
	due := *s.NextBillingDate

	_ = tick(s, t0)
	_ = Apply(s, Input{Trigger: TriggerPaymentApproved, Now: t0, PaidAt: t0}, DefaultPolicy())

	assert.Equal(t, vo.StatusActive, s.Status)
	assert.Equal(t, due, *s.NextBillingDate)
	assert.Nil(t, s.Metadata.PaymentFailedAt)
	assert.Nil(t, s.Metadata.LastPaidAt)
}

func TestApply_LegacyPaymentFailedRowGetsDeadline(t *testing.T) {
	s := activeSnapshot(t0.Add(-2 * day))
	s.Status = vo.StatusPaymentFailed

	out := tick(s, t0)

	assert.True(t, out.Changed)
	assert.Equal(t, vo.StatusPaymentFailed, out.To)
	require.NotNil(t, out.Next.Metadata.GraceDeadline)
	assert.Equal(t, t0.Add(10*day), *out.Next.Metadata.GraceDeadline)
	assert.Len(t, out.Next.Metadata.RetrySchedule, 3)
}
