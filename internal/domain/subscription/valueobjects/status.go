package valueobjects

import (
	"fmt"
	"strings"
)

type SubscriptionStatus string

const (
	StatusActive        SubscriptionStatus = "active"
	StatusPaymentFailed SubscriptionStatus = "payment_failed"
	StatusGracePeriod   SubscriptionStatus = "grace_period"
	StatusSuspended     SubscriptionStatus = "suspended"
	StatusCancelled     SubscriptionStatus = "cancelled"
	StatusFree          SubscriptionStatus = "free"
)

var ValidStatuses = map[SubscriptionStatus]bool{
	StatusActive:        true,
	StatusPaymentFailed: true,
	StatusGracePeriod:   true,
	StatusSuspended:     true,
	StatusCancelled:     true,
	StatusFree:          true,
}

func ParseStatus(value string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	if !ValidStatuses[s] {
		return "", fmt.Errorf("invalid subscription status: %q", value)
	}
	return s, nil
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsBillable reports whether the billing engine may write to a subscription
// in this status. FREE and CANCELLED are owned by tenant actions.
func (s SubscriptionStatus) IsBillable() bool {
	switch s {
	case StatusActive, StatusPaymentFailed, StatusGracePeriod, StatusSuspended:
		return true
	}
	return false
}

// IsDelinquent covers the states where a renewal is overdue but service continues.
func (s SubscriptionStatus) IsDelinquent() bool {
	return s == StatusPaymentFailed || s == StatusGracePeriod
}

// HasService reports whether the tenant keeps its paid plan in this status.
func (s SubscriptionStatus) HasService() bool {
	return s == StatusActive || s.IsDelinquent()
}
