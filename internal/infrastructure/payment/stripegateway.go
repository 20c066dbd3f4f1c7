// Package payment holds the payment gateway adapters.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/shared/config"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// Stripe caps checkout session lifetime at 24 hours.
const maxSessionLifetime = 23 * time.Hour

// ErrInvalidSignature is returned by ParseWebhook for a bad Stripe-Signature.
var ErrInvalidSignature = errors.New("invalid stripe webhook signature")

// StripeGateway creates one Checkout Session per renewal charge. The session
// ID is the charge ID; its payment status is the authoritative charge status.
type StripeGateway struct {
	sessions      *session.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        logger.Interface
	now           func() time.Time
}

func NewStripeGateway(cfg config.StripeConfig, log logger.Interface) *StripeGateway {
	return NewStripeGatewayWithBackend(cfg, stripe.GetBackend(stripe.APIBackend), log)
}

// NewStripeGatewayWithBackend lets tests point the client at a fake API.
func NewStripeGatewayWithBackend(cfg config.StripeConfig, backend stripe.Backend, log logger.Interface) *StripeGateway {
	return &StripeGateway{
		sessions:      &session.Client{B: backend, Key: cfg.APIKey},
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        log.With("component", "payment.stripe"),
		now:           time.Now,
	}
}

func (g *StripeGateway) CreateRenewalCharge(ctx context.Context, req paymentgateway.CreateChargeRequest) (*paymentgateway.CreateChargeResponse, error) {
	expiresAt := req.ExpiresAt
	if limit := g.now().Add(maxSessionLifetime); expiresAt.IsZero() || expiresAt.After(limit) {
		expiresAt = limit
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.OrderNo),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("order_no", req.OrderNo)
	params.AddMetadata("subscription_id", strconv.FormatUint(uint64(req.SubscriptionID), 10))
	params.AddMetadata("tenant_id", strconv.FormatUint(uint64(req.TenantID), 10))

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session for order %s: %w", req.OrderNo, classifyStripeError(err))
	}

	g.logger.Infow("checkout session created",
		"session_id", s.ID,
		"order_no", req.OrderNo,
		"subscription_id", req.SubscriptionID,
	)
	if s.ExpiresAt > 0 {
		expiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return &paymentgateway.CreateChargeResponse{
		ChargeID:     s.ID,
		PreferenceID: s.ClientReferenceID,
		CheckoutURL:  s.URL,
		ExpiresAt:    expiresAt,
	}, nil
}

func (g *StripeGateway) GetChargeStatus(ctx context.Context, chargeID string) (*paymentgateway.ChargeStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sessions.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", chargeID, classifyStripeError(err))
	}
	return &paymentgateway.ChargeStatus{
		ChargeID: s.ID,
		Status:   sessionStatus(s),
	}, nil
}

func sessionStatus(s *stripe.CheckoutSession) vo.PaymentStatus {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return vo.PaymentStatusApproved
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return vo.PaymentStatusRejected
	case s.Status == stripe.CheckoutSessionStatusComplete &&
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid:
		// async payment (boleto, bank debit) failed after checkout completed
		return vo.PaymentStatusRejected
	default:
		return vo.PaymentStatusPending
	}
}

// classifyStripeError maps "not found" to ErrChargeNotFound and anything
// that may succeed on retry to ErrGatewayUnavailable.
func classifyStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", paymentgateway.ErrGatewayUnavailable, err)
	}
	switch {
	case se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", paymentgateway.ErrChargeNotFound, se.Msg)
	case se.HTTPStatusCode == http.StatusTooManyRequests,
		se.HTTPStatusCode >= http.StatusInternalServerError,
		se.HTTPStatusCode == 0:
		return fmt.Errorf("%w: %s", paymentgateway.ErrGatewayUnavailable, se.Msg)
	default:
		return err
	}
}

// checkoutEvents carry a checkout session whose status may have changed.
var checkoutEvents = map[stripe.EventType]bool{
	"checkout.session.completed":               true,
	"checkout.session.async_payment_succeeded": true,
	"checkout.session.async_payment_failed":    true,
	"checkout.session.expired":                 true,
}

// ParseWebhook verifies the signature and returns the checkout session ID
// the event refers to. Events that do not concern a checkout session return
// an empty ID and no error.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !checkoutEvents[event.Type] {
		g.logger.Debugw("ignoring stripe event", "type", event.Type, "event_id", event.ID)
		return "", nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return "", fmt.Errorf("parse %s event: %w", event.Type, err)
	}
	return s.ID, nil
}
