package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysUntil(t *testing.T) {
	require.NoError(t, Init("UTC"))

	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{"later today", time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), 0},
		{"early tomorrow", time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC), 1},
		{"exactly seven days", now.Add(7 * 24 * time.Hour), 7},
		{"seven days minus an hour", now.Add(7*24*time.Hour - time.Hour), 7},
		{"yesterday", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(now, tt.due))
		})
	}
}

func TestDaysUntil_BusinessTimezone(t *testing.T) {
	require.NoError(t, Init("America/Sao_Paulo"))
	t.Cleanup(func() { _ = Init("UTC") })

	// 01:00 UTC is still the previous evening in Sao Paulo.
	now := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now, due))
	assert.False(t, SameDay(now, due))
}

func TestEndOfDayUTC(t *testing.T) {
	require.NoError(t, Init("UTC"))

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), EndOfDayUTC(now, 0))
	end := EndOfDayUTC(now, 7)
	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, 7, DaysUntil(now, end.Add(-time.Minute)))
}

func TestEndOfDayUTC_BusinessTimezone(t *testing.T) {
	require.NoError(t, Init("America/Sao_Paulo"))
	t.Cleanup(func() { _ = Init("UTC") })

	// 01:00 UTC on the 11th is the evening of the 10th in Sao Paulo (UTC-3).
	now := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), EndOfDayUTC(now, 0))
}

func TestSameDay(t *testing.T) {
	require.NoError(t, Init("UTC"))
	a := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)
	assert.True(t, SameDay(a, a.Add(23*time.Hour)))
	assert.False(t, SameDay(a, a.Add(24*time.Hour)))
}

func TestMetadataTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 10, 8, 15, 0, 0, time.FixedZone("X", 3600))
	out, err := ParseMetadataTime(FormatMetadataTime(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	_, err = ParseMetadataTime("not-a-time")
	assert.Error(t, err)
}

func TestInit_UnknownZone(t *testing.T) {
	assert.Error(t, Init("Mars/Olympus"))
}
