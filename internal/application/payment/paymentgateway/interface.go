package paymentgateway

import (
	"context"
	"errors"
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
)

var (
	// ErrChargeNotFound means the gateway has no charge with the given ID.
	ErrChargeNotFound = errors.New("charge not found at gateway")
	// ErrGatewayUnavailable wraps timeouts, open circuits and 5xx responses.
	// Callers treat it as "result unknown, try again next tick".
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// PaymentGateway creates renewal charges and reports their authoritative status.
// The engine never trusts a pushed status; it always asks GetChargeStatus.
type PaymentGateway interface {
	// CreateRenewalCharge must return the same charge for a repeated IdempotencyKey.
	CreateRenewalCharge(ctx context.Context, req CreateChargeRequest) (*CreateChargeResponse, error)
	GetChargeStatus(ctx context.Context, chargeID string) (*ChargeStatus, error)
}

type CreateChargeRequest struct {
	// IdempotencyKey is derived from the subscription and the billing date the charge pays for.
	IdempotencyKey string
	OrderNo        string
	SubscriptionID uint
	TenantID       uint
	Amount         int64 // minor units
	Currency       string
	Description    string
	CustomerEmail  string
	ExpiresAt      time.Time
}

type CreateChargeResponse struct {
	ChargeID     string
	PreferenceID string
	CheckoutURL  string
	// ExpiresAt is when the checkout link stops working at the gateway.
	// Zero means the requested ExpiresAt was honoured.
	ExpiresAt time.Time
}

type ChargeStatus struct {
	ChargeID string
	Status   vo.PaymentStatus
	PaidAt   *time.Time
}
