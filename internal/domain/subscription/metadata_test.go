package subscription

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_SurvivesJSONColumn(t *testing.T) {
	sent := time.Date(2026, 3, 3, 8, 0, 0, 123456789, time.UTC)
	md := Metadata{
		LastReminderSentAt: &sent,
		ReminderCount:      2,
		RetrySchedule:      []time.Time{sent.Add(24 * time.Hour), sent.Add(72 * time.Hour)},
		RetryAttempts:      1,
		SuspensionReason:   "payment not received before grace deadline",
		Extra:              map[string]any{"migrated_from": "legacy"},
	}

	raw, err := json.Marshal(md.ToMap())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	got := ParseMetadata(decoded)
	assert.Equal(t, sent, *got.LastReminderSentAt)
	assert.Equal(t, 2, got.ReminderCount)
	assert.Equal(t, md.RetrySchedule, got.RetrySchedule)
	assert.Equal(t, 1, got.RetryAttempts)
	assert.Equal(t, md.SuspensionReason, got.SuspensionReason)
	assert.Equal(t, "legacy", got.Extra["migrated_from"])
}

func TestMetadata_UnreadableKnownKeyIsPreserved(t *testing.T) {
	got := ParseMetadata(map[string]any{
		MetaSuspendedAt:   "yesterday",
		MetaReminderCount: 3.0,
	})

	assert.Nil(t, got.SuspendedAt)
	assert.Equal(t, 3, got.ReminderCount)
	assert.Equal(t, "yesterday", got.ToMap()[MetaSuspendedAt])
}

func TestMetadata_ToMapOmitsUnsetFields(t *testing.T) {
	assert.Empty(t, Metadata{}.ToMap())
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	md := Metadata{SuspendedAt: &at, RetrySchedule: []time.Time{at}, Extra: map[string]any{"k": "v"}}

	c := md.Clone()
	*c.SuspendedAt = at.Add(time.Hour)
	c.RetrySchedule[0] = at.Add(time.Hour)
	c.Extra["k"] = "changed"

	assert.Equal(t, at, *md.SuspendedAt)
	assert.Equal(t, at, md.RetrySchedule[0])
	assert.Equal(t, "v", md.Extra["k"])
}

func TestMetadata_RetriesDueAndReminderDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	md := Metadata{RetrySchedule: []time.Time{now.Add(-48 * time.Hour), now, now.Add(time.Hour)}}
	assert.Equal(t, 2, md.RetriesDue(now))

	assert.False(t, md.ReminderSentOn(now))
	morning := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	md.LastReminderSentAt = &morning
	assert.True(t, md.ReminderSentOn(now))
	assert.False(t, md.ReminderSentOn(now.Add(24*time.Hour)))
}
