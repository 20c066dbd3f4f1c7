package subscription

import (
	"slices"
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
)

// Snapshot is the state a lifecycle step reads. It is a plain value so the
// step can be computed without touching storage.
type Snapshot struct {
	ID                 uint
	TenantID           uint
	PlanTier           vo.PlanTier
	BillingCycle       vo.BillingCycle
	Price              vo.Money
	Status             vo.SubscriptionStatus
	NextBillingDate    *time.Time
	CurrentPeriodStart *time.Time
	Metadata           Metadata
	Version            int
}

type Trigger string

const (
	// TriggerTick re-evaluates the subscription against the clock.
	TriggerTick Trigger = "tick"
	// TriggerPaymentApproved applies a gateway-confirmed payment.
	TriggerPaymentApproved Trigger = "payment_approved"
	// TriggerPaymentRejected records a rejected renewal charge.
	TriggerPaymentRejected Trigger = "payment_rejected"
	// TriggerReminderSent records that a reminder or retry request went out.
	TriggerReminderSent Trigger = "reminder_sent"
)

type Input struct {
	Trigger Trigger
	Now     time.Time

	// PaidAt is the approval instant for TriggerPaymentApproved.
	PaidAt time.Time

	// RetryAttempts is the retry slot count already served, for a retry reminder.
	// Zero means a plain renewal reminder.
	RetryAttempts int
}

// Effect is an external side effect the caller must perform in the same
// transaction that persists the outcome.
type Effect string

const (
	EffectSuspendTenant Effect = "suspend_tenant"
	EffectRestoreTenant Effect = "restore_tenant"
)

// NotificationKind names the template sent to the tenant.
type NotificationKind string

const (
	NotifyRenewalReminder NotificationKind = "renewal_reminder"
	NotifyPaymentRetry    NotificationKind = "payment_retry"
	NotifyPaymentFailed   NotificationKind = "payment_failed"
	NotifyGraceStarted    NotificationKind = "grace_period_started"
	NotifySuspended       NotificationKind = "subscription_suspended"
	NotifyReactivated     NotificationKind = "subscription_reactivated"
	NotifyPaymentReceived NotificationKind = "payment_received"
)

// Policy holds the dunning schedule.
type Policy struct {
	// RetryOffsets are measured from the missed due date.
	RetryOffsets []time.Duration
	// GracePeriod is measured from the moment the payment failure is detected.
	GracePeriod time.Duration
}

func DefaultPolicy() Policy {
	return NewPolicy([]int{1, 3, 7}, 10)
}

func NewPolicy(retryDays []int, graceDays int) Policy {
	offsets := make([]time.Duration, len(retryDays))
	for i, d := range retryDays {
		offsets[i] = time.Duration(d) * 24 * time.Hour
	}
	slices.Sort(offsets)
	return Policy{RetryOffsets: offsets, GracePeriod: time.Duration(graceDays) * 24 * time.Hour}
}

// Outcome is the result of one lifecycle step.
type Outcome struct {
	Next Snapshot
	From vo.SubscriptionStatus
	To   vo.SubscriptionStatus

	// Changed means Next differs from the input and must be persisted.
	Changed bool
	// Transitioned means the status or the billing date moved.
	Transitioned bool

	Effects       []Effect
	Notifications []NotificationKind

	// Reason explains a no-op or names the rule that fired.
	Reason string
}

func (o Outcome) HasEffect(e Effect) bool {
	return slices.Contains(o.Effects, e)
}

// Apply is the only place that decides subscription state. It never reads
// storage or the wall clock; everything it needs is in s, in and p.
func Apply(s Snapshot, in Input, p Policy) Outcome {
	st := &step{
		next: s,
		out:  Outcome{From: s.Status, To: s.Status},
	}
	st.next.Metadata = s.Metadata.Clone()
	st.next.NextBillingDate = cloneTime(s.NextBillingDate)
	st.next.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)

	if !s.Status.IsBillable() {
		st.out.Reason = "status " + s.Status.String() + " is not managed by billing"
		return st.finish()
	}

	switch in.Trigger {
	case TriggerTick:
		// Settle in one call so an immediate re-run has nothing left to do.
		for range 4 {
			if !st.tick(in.Now, p) {
				break
			}
		}
	case TriggerPaymentApproved:
		st.approve(in.Now, in.PaidAt)
	case TriggerPaymentRejected:
		at := in.Now
		st.next.Metadata.LastRejectedAt = &at
		st.out.Changed = true
		st.out.Reason = "renewal charge rejected, waiting for next retry slot"
	case TriggerReminderSent:
		st.reminderSent(in.Now, in.RetryAttempts)
	default:
		st.out.Reason = "unknown trigger " + string(in.Trigger)
	}
	return st.finish()
}

type step struct {
	next Snapshot
	out  Outcome
}

func (st *step) finish() Outcome {
	st.out.Next = st.next
	st.out.To = st.next.Status
	return st.out
}

func (st *step) moveTo(status vo.SubscriptionStatus, reason string) {
	st.next.Status = status
	st.out.Changed = true
	st.out.Transitioned = true
	st.out.Reason = reason
}

func (st *step) notify(kind NotificationKind) {
	st.out.Notifications = append(st.out.Notifications, kind)
}

// tick advances one status along the dunning path and reports whether it did.
func (st *step) tick(now time.Time, p Policy) bool {
	md := &st.next.Metadata
	switch st.next.Status {
	case vo.StatusActive:
		due := st.next.NextBillingDate
		if due == nil {
			if st.out.Reason == "" {
				st.out.Reason = "active subscription has no billing date"
			}
			return false
		}
		if !due.Before(now) {
			if st.out.Reason == "" {
				st.out.Reason = "not yet due"
			}
			return false
		}
		failedAt := now
		md.PaymentFailedAt = &failedAt
		md.RetrySchedule = retrySchedule(*due, p)
		md.RetryAttempts = 0
		deadline := now.Add(p.GracePeriod)
		md.GraceDeadline = &deadline
		st.moveTo(vo.StatusPaymentFailed, "billing date passed without approved payment")
		st.notify(NotifyPaymentFailed)
		return true

	case vo.StatusPaymentFailed:
		st.ensureDunningState(now, p)
		lastSlot := md.RetrySchedule[len(md.RetrySchedule)-1]
		if lastSlot.After(now) && md.GraceDeadline.After(now) {
			if st.out.Reason == "" {
				st.out.Reason = "retries still scheduled"
			}
			return false
		}
		started := now
		md.GraceStartedAt = &started
		st.moveTo(vo.StatusGracePeriod, "retry schedule exhausted")
		st.notify(NotifyGraceStarted)
		return true

	case vo.StatusGracePeriod:
		st.ensureDunningState(now, p)
		if md.GraceDeadline.After(now) {
			if st.out.Reason == "" {
				st.out.Reason = "grace period running"
			}
			return false
		}
		if md.CurrentlySuspended() {
			// tenant was already downgraded for this suspension
			st.moveTo(vo.StatusSuspended, "grace period elapsed, suspension already recorded")
			return true
		}
		if md.SuspendedAt != nil {
			md.SuspensionHistory = append(md.SuspensionHistory, *md.SuspendedAt)
		}
		at := now
		md.SuspendedAt = &at
		md.SuspensionReason = "payment not received before grace deadline"
		st.moveTo(vo.StatusSuspended, "grace period elapsed")
		st.out.Effects = append(st.out.Effects, EffectSuspendTenant)
		st.notify(NotifySuspended)
		return true
	}
	if st.out.Reason == "" {
		st.out.Reason = "no time-based transition from " + st.next.Status.String()
	}
	return false
}

// ensureDunningState fills retry fields missing from rows written before
// they existed, so the dunning rules always have a deadline to work with.
func (st *step) ensureDunningState(now time.Time, p Policy) {
	md := &st.next.Metadata
	if md.PaymentFailedAt == nil {
		at := now
		md.PaymentFailedAt = &at
		st.out.Changed = true
	}
	if len(md.RetrySchedule) == 0 {
		base := *md.PaymentFailedAt
		if st.next.NextBillingDate != nil {
			base = *st.next.NextBillingDate
		}
		md.RetrySchedule = retrySchedule(base, p)
		st.out.Changed = true
	}
	if md.GraceDeadline == nil {
		deadline := md.PaymentFailedAt.Add(p.GracePeriod)
		md.GraceDeadline = &deadline
		st.out.Changed = true
	}
}

func (st *step) approve(now, paidAt time.Time) {
	if paidAt.IsZero() {
		paidAt = now
	}
	md := &st.next.Metadata
	if st.next.CurrentPeriodStart != nil && !paidAt.After(*st.next.CurrentPeriodStart) {
		st.out.Reason = "stale approval: paid before current period start"
		return
	}
	if md.LastPaidAt != nil && !paidAt.After(*md.LastPaidAt) {
		st.out.Reason = "stale approval: not newer than last applied payment"
		return
	}

	cycle := st.next.BillingCycle
	from := st.next.Status
	if from == vo.StatusSuspended {
		start := now
		next := cycle.Next(now)
		st.next.CurrentPeriodStart = &start
		st.next.NextBillingDate = &next
		md.ReactivatedAt = &start
		md.clearRetryState()
		st.moveTo(vo.StatusActive, "payment approved after suspension")
		st.out.Effects = append(st.out.Effects, EffectRestoreTenant)
		st.notify(NotifyReactivated)
	} else {
		base := now
		if st.next.NextBillingDate != nil {
			base = *st.next.NextBillingDate
		}
		next := cycle.Next(base)
		if !next.After(now) {
			// missed more than a whole cycle; restart from today
			base, next = now, cycle.Next(now)
		}
		st.next.CurrentPeriodStart = &base
		st.next.NextBillingDate = &next
		md.clearRetryState()
		reason := "renewal approved"
		if from != vo.StatusActive {
			reason = "overdue payment approved"
		}
		st.moveTo(vo.StatusActive, reason)
		st.notify(NotifyPaymentReceived)
	}
	paid := paidAt
	md.LastPaidAt = &paid
}

func (st *step) reminderSent(now time.Time, retryAttempts int) {
	md := &st.next.Metadata
	at := now
	md.LastReminderSentAt = &at
	md.ReminderCount++
	if retryAttempts > md.RetryAttempts {
		md.RetryAttempts = retryAttempts
	}
	st.out.Changed = true
	st.out.Reason = "reminder recorded"
}

func retrySchedule(due time.Time, p Policy) []time.Time {
	slots := make([]time.Time, len(p.RetryOffsets))
	for i, off := range p.RetryOffsets {
		slots[i] = due.Add(off)
	}
	if len(slots) == 0 {
		slots = []time.Time{due}
	}
	return slots
}
