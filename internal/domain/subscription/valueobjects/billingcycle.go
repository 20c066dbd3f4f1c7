package valueobjects

import (
	"fmt"
	"strings"
	"time"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func ParseBillingCycle(value string) (BillingCycle, error) {
	c := BillingCycle(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid billing cycle: %q", value)
	}
	return c, nil
}

func (b BillingCycle) String() string {
	return string(b)
}

func (b BillingCycle) IsValid() bool {
	return b == BillingCycleMonthly || b == BillingCycleYearly
}

// Next returns the billing date one cycle after from. Month arithmetic clamps
// to the last day of the target month, so Jan 31 renews on Feb 28/29.
func (b BillingCycle) Next(from time.Time) time.Time {
	months := 1
	if b == BillingCycleYearly {
		months = 12
	}
	return addMonthsClamped(from, months)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return first.AddDate(0, 0, d-1)
}
