package valueobjects

import (
	"fmt"
	"strings"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid payment status: %q", value)
	}
	return s, nil
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	}
	return false
}

func (s PaymentStatus) IsPending() bool  { return s == PaymentStatusPending }
func (s PaymentStatus) IsApproved() bool { return s == PaymentStatusApproved }
func (s PaymentStatus) IsFinal() bool    { return s != PaymentStatusPending }

func (s PaymentStatus) String() string {
	return string(s)
}
