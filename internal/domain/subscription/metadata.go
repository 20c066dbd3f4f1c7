package subscription

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
)

// Metadata keys persisted in the subscription's JSON column. A key keeps its
// meaning forever; new facts get new keys.
const (
	MetaLastReminderSentAt = "last_reminder_sent_at"
	MetaReminderCount      = "reminder_count"
	MetaPaymentFailedAt    = "payment_failed_at"
	MetaRetrySchedule      = "retry_schedule"
	MetaRetryAttempts      = "retry_attempts"
	MetaGraceStartedAt     = "grace_started_at"
	MetaGraceDeadline      = "grace_deadline"
	MetaSuspensionReason   = "suspension_reason"
	MetaSuspendedAt        = "suspended_at"
	MetaSuspensionHistory  = "suspension_history"
	MetaReactivatedAt      = "reactivated_at"
	MetaLastPaidAt         = "last_paid_at"
	MetaLastRejectedAt     = "last_rejected_at"
)

// Metadata is the typed view of the audit side record. Keys this version does
// not know about are carried in Extra and written back untouched.
type Metadata struct {
	LastReminderSentAt *time.Time
	ReminderCount      int

	PaymentFailedAt *time.Time
	RetrySchedule   []time.Time
	RetryAttempts   int
	GraceStartedAt  *time.Time
	GraceDeadline   *time.Time

	SuspensionReason  string
	SuspendedAt       *time.Time
	SuspensionHistory []time.Time
	ReactivatedAt     *time.Time

	LastPaidAt     *time.Time
	LastRejectedAt *time.Time

	Extra map[string]any
}

// ParseMetadata decodes a stored map. A known key whose value cannot be read
// is kept verbatim in Extra rather than dropped.
func ParseMetadata(raw map[string]any) Metadata {
	md := Metadata{Extra: map[string]any{}}
	for k, v := range raw {
		if !md.decode(k, v) {
			md.Extra[k] = v
		}
	}
	return md
}

func (m *Metadata) decode(key string, v any) bool {
	switch key {
	case MetaLastReminderSentAt:
		return decodeTime(v, &m.LastReminderSentAt)
	case MetaReminderCount:
		return decodeInt(v, &m.ReminderCount)
	case MetaPaymentFailedAt:
		return decodeTime(v, &m.PaymentFailedAt)
	case MetaRetrySchedule:
		return decodeTimes(v, &m.RetrySchedule)
	case MetaRetryAttempts:
		return decodeInt(v, &m.RetryAttempts)
	case MetaGraceStartedAt:
		return decodeTime(v, &m.GraceStartedAt)
	case MetaGraceDeadline:
		return decodeTime(v, &m.GraceDeadline)
	case MetaSuspensionReason:
		s, ok := v.(string)
		m.SuspensionReason = s
		return ok
	case MetaSuspendedAt:
		return decodeTime(v, &m.SuspendedAt)
	case MetaSuspensionHistory:
		return decodeTimes(v, &m.SuspensionHistory)
	case MetaReactivatedAt:
		return decodeTime(v, &m.ReactivatedAt)
	case MetaLastPaidAt:
		return decodeTime(v, &m.LastPaidAt)
	case MetaLastRejectedAt:
		return decodeTime(v, &m.LastRejectedAt)
	}
	return false
}

// ToMap encodes the record for storage. Unset fields are omitted so an
// older reader sees exactly the keys that carry information.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, len(m.Extra)+13)
	maps.Copy(out, m.Extra)

	putTime(out, MetaLastReminderSentAt, m.LastReminderSentAt)
	putInt(out, MetaReminderCount, m.ReminderCount)
	putTime(out, MetaPaymentFailedAt, m.PaymentFailedAt)
	putTimes(out, MetaRetrySchedule, m.RetrySchedule)
	putInt(out, MetaRetryAttempts, m.RetryAttempts)
	putTime(out, MetaGraceStartedAt, m.GraceStartedAt)
	putTime(out, MetaGraceDeadline, m.GraceDeadline)
	if m.SuspensionReason != "" {
		out[MetaSuspensionReason] = m.SuspensionReason
	}
	putTime(out, MetaSuspendedAt, m.SuspendedAt)
	putTimes(out, MetaSuspensionHistory, m.SuspensionHistory)
	putTime(out, MetaReactivatedAt, m.ReactivatedAt)
	putTime(out, MetaLastPaidAt, m.LastPaidAt)
	putTime(out, MetaLastRejectedAt, m.LastRejectedAt)
	return out
}

// Clone returns a deep copy so a transition never aliases its input.
func (m Metadata) Clone() Metadata {
	c := m
	c.LastReminderSentAt = cloneTime(m.LastReminderSentAt)
	c.PaymentFailedAt = cloneTime(m.PaymentFailedAt)
	c.RetrySchedule = slices.Clone(m.RetrySchedule)
	c.GraceStartedAt = cloneTime(m.GraceStartedAt)
	c.GraceDeadline = cloneTime(m.GraceDeadline)
	c.SuspendedAt = cloneTime(m.SuspendedAt)
	c.SuspensionHistory = slices.Clone(m.SuspensionHistory)
	c.ReactivatedAt = cloneTime(m.ReactivatedAt)
	c.LastPaidAt = cloneTime(m.LastPaidAt)
	c.LastRejectedAt = cloneTime(m.LastRejectedAt)
	c.Extra = maps.Clone(m.Extra)
	return c
}

// CurrentlySuspended reports whether a suspension was recorded and not
// superseded by a later reactivation.
func (m Metadata) CurrentlySuspended() bool {
	if m.SuspendedAt == nil {
		return false
	}
	return m.ReactivatedAt == nil || m.ReactivatedAt.Before(*m.SuspendedAt)
}

// RetriesDue counts retry slots scheduled at or before now.
func (m Metadata) RetriesDue(now time.Time) int {
	n := 0
	for _, slot := range m.RetrySchedule {
		if !slot.After(now) {
			n++
		}
	}
	return n
}

// ReminderSentOn reports whether any reminder went out on now's business day.
func (m Metadata) ReminderSentOn(now time.Time) bool {
	return m.LastReminderSentAt != nil && biztime.SameDay(*m.LastReminderSentAt, now)
}

func (m *Metadata) clearRetryState() {
	m.PaymentFailedAt = nil
	m.RetrySchedule = nil
	m.RetryAttempts = 0
	m.GraceStartedAt = nil
	m.GraceDeadline = nil
}

func decodeTime(v any, dst **time.Time) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	t, err := biztime.ParseMetadataTime(s)
	if err != nil {
		return false
	}
	*dst = &t
	return true
}

func decodeTimes(v any, dst *[]time.Time) bool {
	var items []any
	switch vv := v.(type) {
	case []any:
		items = vv
	case []string:
		for _, s := range vv {
			items = append(items, s)
		}
	default:
		return false
	}
	out := make([]time.Time, 0, len(items))
	for _, item := range items {
		var t *time.Time
		if !decodeTime(item, &t) {
			return false
		}
		out = append(out, *t)
	}
	*dst = out
	return true
}

func decodeInt(v any, dst *int) bool {
	switch n := v.(type) {
	case int:
		*dst = n
	case int64:
		*dst = int(n)
	case float64:
		*dst = int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return false
		}
		*dst = int(i)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return false
		}
		*dst = i
	default:
		return false
	}
	return true
}

func putTime(out map[string]any, key string, t *time.Time) {
	if t != nil {
		out[key] = biztime.FormatMetadataTime(*t)
	}
}

func putTimes(out map[string]any, key string, ts []time.Time) {
	if len(ts) == 0 {
		return
	}
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = biztime.FormatMetadataTime(t)
	}
	out[key] = s
}

func putInt(out map[string]any, key string, n int) {
	if n != 0 {
		out[key] = n
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
