package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/application/billing/usecases"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/payment"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
	"github.com/bookwise-inc/bookwise/internal/shared/utils"
)

const maxWebhookBody = 64 << 10

type PaymentNotificationHandler interface {
	Execute(ctx context.Context, chargeID string) (*usecases.PaymentNotificationResult, error)
}

// StripeWebhookParser turns a signed Stripe event into the charge it refers to.
type StripeWebhookParser interface {
	ParseWebhook(payload []byte, signature string) (string, error)
}

type WebhookHandler struct {
	notifications PaymentNotificationHandler
	stripe        StripeWebhookParser
	logger        logger.Interface
}

// NewWebhookHandler builds the handler. stripe may be nil when the Stripe
// gateway is not configured.
func NewWebhookHandler(notifications PaymentNotificationHandler, stripe StripeWebhookParser, logger logger.Interface) *WebhookHandler {
	return &WebhookHandler{
		notifications: notifications,
		stripe:        stripe,
		logger:        logger,
	}
}

type PaymentNotificationRequest struct {
	ChargeID string `json:"charge_id" binding:"required,max=255"`
}

// PaymentNotification accepts a generic gateway push naming a charge.
// A 503 asks the gateway to deliver again.
//
//	@Router	/webhooks/payments [post]
func (h *WebhookHandler) PaymentNotification(c *gin.Context) {
	var req PaymentNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	h.handle(c, req.ChargeID)
}

//	@Router	/webhooks/stripe [post]
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	if h.stripe == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "stripe webhooks are not enabled")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	chargeID, err := h.stripe.ParseWebhook(payload, c.GetHeader(constants.HeaderStripeSig))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warnw("stripe webhook signature rejected", "client_ip", c.ClientIP())
			utils.ErrorResponse(c, http.StatusBadRequest, "invalid signature")
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid event payload")
		return
	}
	if chargeID == "" {
		utils.SuccessResponse(c, http.StatusOK, "event ignored", nil)
		return
	}
	h.handle(c, chargeID)
}

func (h *WebhookHandler) handle(c *gin.Context, chargeID string) {
	result, err := h.notifications.Execute(c.Request.Context(), chargeID)
	if err != nil {
		h.logger.Warnw("payment notification not processed", "charge_id", chargeID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", result)
}
