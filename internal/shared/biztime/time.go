// Package biztime keeps all stored instants in UTC and uses the business
// timezone only to decide where a calendar day starts and ends.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone was configured.
const DefaultTimezone = "UTC"

var (
	bizLocation *time.Location
	locationMu  sync.RWMutex
)

// Init sets the business timezone. An empty tz selects DefaultTimezone.
func Init(tz string) error {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("failed to load business timezone %q: %w", tz, err)
	}
	locationMu.Lock()
	bizLocation = loc
	locationMu.Unlock()
	return nil
}

// MustInit is Init for startup code that cannot continue without a timezone.
func MustInit(tz string) {
	if err := Init(tz); err != nil {
		panic(err)
	}
}

// Location returns the business timezone, UTC until Init is called.
func Location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	if bizLocation == nil {
		return time.UTC
	}
	return bizLocation
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// StartOfDayUTC returns midnight of t's business day, expressed in UTC.
func StartOfDayUTC(t time.Time) time.Time {
	b := t.In(Location())
	return time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, Location()).UTC()
}

// EndOfDayUTC returns the first instant after the business day that lies
// days after t's day, expressed in UTC. EndOfDayUTC(t, 0) is tomorrow's midnight.
func EndOfDayUTC(t time.Time, days int) time.Time {
	b := t.In(Location())
	return time.Date(b.Year(), b.Month(), b.Day()+days+1, 0, 0, 0, 0, Location()).UTC()
}

// SameDay reports whether a and b fall on the same business calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDayUTC(a).Equal(StartOfDayUTC(b))
}

// DaysUntil counts business calendar days from `from` to `to`.
// A due date later today is 0 days away, tomorrow is 1, and so on.
// DST shifts are absorbed by rounding to whole days.
func DaysUntil(from, to time.Time) int {
	d := StartOfDayUTC(to).Sub(StartOfDayUTC(from))
	return int((d + 12*time.Hour).Hours() / 24)
}

// FormatMetadataTime renders t in the layout used by JSON metadata columns.
// Sub-second precision is kept so watermarks compare exactly with DB values.
func FormatMetadataTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseMetadataTime parses a value written by FormatMetadataTime.
func ParseMetadataTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ToBizTimezone converts t for display to operators and tenants.
func ToBizTimezone(t time.Time) time.Time {
	return t.In(Location())
}
