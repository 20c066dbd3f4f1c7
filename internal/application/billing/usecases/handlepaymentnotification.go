package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	apperrors "github.com/bookwise-inc/bookwise/internal/shared/errors"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// NotificationResult tells the webhook caller how a notification was handled.
type NotificationResult string

const (
	// ResultApplied means the charge outcome changed local state.
	ResultApplied NotificationResult = "applied"
	// ResultDuplicate means this charge outcome was already processed.
	ResultDuplicate NotificationResult = "duplicate"
	// ResultDeferred means the charge is not known locally yet; the
	// validation pass will pick it up.
	ResultDeferred NotificationResult = "deferred"
	// ResultPending means the gateway has not decided the charge yet.
	ResultPending NotificationResult = "pending"
	// ResultIgnored means the notification could not change anything.
	ResultIgnored NotificationResult = "ignored"
)

type PaymentNotificationResult struct {
	Result         NotificationResult `json:"result"`
	ChargeID       string             `json:"charge_id"`
	SubscriptionID uint               `json:"subscription_id,omitempty"`
	PaymentStatus  vo.PaymentStatus   `json:"payment_status,omitempty"`
	Reason         string             `json:"reason,omitempty"`
}

// HandlePaymentNotificationUseCase processes a gateway push. The push only
// names the charge; the status is always fetched from the gateway, and the
// same (charge, status) pair is processed at most once.
type HandlePaymentNotificationUseCase struct {
	paymentRepo payment.Repository
	gateway     paymentgateway.PaymentGateway
	charges     *ChargeManager
	idempotency IdempotencyStore
	metrics     BillingMetrics
	logger      logger.Interface
	now         func() time.Time
}

func NewHandlePaymentNotificationUseCase(
	paymentRepo payment.Repository,
	gateway paymentgateway.PaymentGateway,
	charges *ChargeManager,
	idempotency IdempotencyStore,
	logger logger.Interface,
) *HandlePaymentNotificationUseCase {
	return &HandlePaymentNotificationUseCase{
		paymentRepo: paymentRepo,
		gateway:     gateway,
		charges:     charges,
		idempotency: idempotency,
		metrics:     nopMetrics{},
		logger:      logger,
		now:         biztime.NowUTC,
	}
}

func (uc *HandlePaymentNotificationUseCase) SetMetrics(m BillingMetrics) {
	if m != nil {
		uc.metrics = m
	}
}

// Execute returns an error only when the outcome is unknown and the gateway
// should deliver the notification again.
func (uc *HandlePaymentNotificationUseCase) Execute(ctx context.Context, chargeID string) (*PaymentNotificationResult, error) {
	if chargeID == "" {
		return nil, apperrors.NewValidationError("charge id is required")
	}
	res, err := uc.execute(ctx, chargeID)
	if err != nil {
		uc.metrics.WebhookHandled("error")
		return nil, err
	}
	uc.metrics.WebhookHandled(string(res.Result))
	return res, nil
}

func (uc *HandlePaymentNotificationUseCase) execute(ctx context.Context, chargeID string) (*PaymentNotificationResult, error) {
	res := &PaymentNotificationResult{ChargeID: chargeID}

	if seen, err := uc.seen(ctx, idempotencyKey(chargeID, vo.PaymentStatusApproved)); err == nil && seen {
		res.Result = ResultDuplicate
		res.PaymentStatus = vo.PaymentStatusApproved
		return res, nil
	}

	p, err := uc.paymentRepo.GetByChargeID(ctx, chargeID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			uc.logger.Warnw("payment notification for unknown charge, deferred", "charge_id", chargeID)
			res.Result = ResultDeferred
			return res, nil
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	res.SubscriptionID = p.SubscriptionID()

	st, err := uc.gateway.GetChargeStatus(ctx, chargeID)
	if err != nil {
		if errors.Is(err, paymentgateway.ErrChargeNotFound) {
			res.Result = ResultIgnored
			res.Reason = "charge unknown to gateway"
			return res, nil
		}
		uc.logger.Warnw("could not confirm charge status", "charge_id", chargeID, "error", err)
		return nil, apperrors.NewUnavailableError("payment gateway unavailable", err.Error())
	}
	res.PaymentStatus = st.Status

	key := idempotencyKey(chargeID, st.Status)
	if st.Status.IsFinal() {
		if seen, err := uc.seen(ctx, key); err == nil && seen {
			res.Result = ResultDuplicate
			return res, nil
		}
	}

	now := uc.now()
	var tr *TransitionResult
	switch st.Status {
	case vo.PaymentStatusApproved:
		tr, err = uc.charges.ApplyApproval(ctx, p.SubscriptionID(), p.ID(), now, "webhook")
	case vo.PaymentStatusRejected:
		tr, err = uc.charges.ApplyRejection(ctx, p.SubscriptionID(), p.ID(), "rejected by gateway", now, "webhook")
	default:
		res.Result = ResultPending
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply charge %s: %w", chargeID, err)
	}

	switch {
	case tr.Applied():
		res.Result = ResultApplied
		res.Reason = tr.Outcome.Reason
	case tr.SkipReason == skipAlreadyApproved || tr.SkipReason == skipAlreadyRejected:
		res.Result = ResultDuplicate
		res.Reason = tr.SkipReason
	default:
		res.Result = ResultIgnored
		res.Reason = tr.SkipReason
		if res.Reason == "" {
			res.Reason = tr.Outcome.Reason
		}
	}

	if err := uc.idempotency.Mark(ctx, key); err != nil {
		uc.logger.Warnw("failed to record processed notification", "key", key, "error", err)
	}
	uc.logger.Infow("payment notification processed",
		"charge_id", chargeID,
		"subscription_id", p.SubscriptionID(),
		"status", st.Status,
		"result", res.Result,
		"reason", res.Reason,
	)
	return res, nil
}

// seen treats a store failure as "not seen"; the state checks behind it
// keep a replay harmless.
func (uc *HandlePaymentNotificationUseCase) seen(ctx context.Context, key string) (bool, error) {
	ok, err := uc.idempotency.Seen(ctx, key)
	if err != nil {
		uc.logger.Warnw("idempotency store unavailable", "key", key, "error", err)
	}
	return ok, err
}

func idempotencyKey(chargeID string, status vo.PaymentStatus) string {
	return "charge:" + chargeID + ":" + string(status)
}
