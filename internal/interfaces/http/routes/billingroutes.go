package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/interfaces/http/handlers"
	"github.com/bookwise-inc/bookwise/internal/interfaces/http/middleware"
)

// BillingRouteConfig holds dependencies for billing admin and webhook routes.
type BillingRouteConfig struct {
	BillingHandler *handlers.BillingHandler
	WebhookHandler *handlers.WebhookHandler
	AuthMiddleware *middleware.AuthMiddleware
	// Optional per-group limiters.
	WebhookLimit gin.HandlerFunc
	AdminLimit   gin.HandlerFunc
}

func SetupBillingRoutes(engine *gin.Engine, cfg *BillingRouteConfig) {
	webhooks := engine.Group("/webhooks")
	if cfg.WebhookLimit != nil {
		webhooks.Use(cfg.WebhookLimit)
	}
	{
		webhooks.POST("/payments", cfg.WebhookHandler.PaymentNotification)
		webhooks.POST("/stripe", cfg.WebhookHandler.StripeWebhook)
	}

	admin := engine.Group("/admin/billing")
	if cfg.AdminLimit != nil {
		admin.Use(cfg.AdminLimit)
	}
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/validations", cfg.BillingHandler.RunValidations)
		admin.POST("/renewals", cfg.BillingHandler.RunRenewals)
		admin.GET("/scheduler", cfg.BillingHandler.SchedulerStatus)
	}
}
