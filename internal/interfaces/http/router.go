package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/ratelimit"
	"github.com/bookwise-inc/bookwise/internal/interfaces/http/handlers"
	"github.com/bookwise-inc/bookwise/internal/interfaces/http/middleware"
	"github.com/bookwise-inc/bookwise/internal/interfaces/http/routes"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	engine    *gin.Engine
	container *Container
	log       logger.Interface
}

func NewRouter(container *Container, log logger.Interface) *Router {
	r := &Router{
		engine:    gin.New(),
		container: container,
		log:       log,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	c := r.container
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CustomLogger(r.log.Named("http"), c.Metrics()))
	r.engine.Use(middleware.Recovery(r.log))

	r.engine.GET("/health", r.health)
	r.engine.GET("/metrics", gin.WrapH(c.Metrics().Handler()))

	var stripe handlers.StripeWebhookParser
	if sg := c.StripeWebhooks(); sg != nil {
		stripe = sg
	}

	cfg := &routes.BillingRouteConfig{
		BillingHandler: handlers.NewBillingHandler(c.Scheduler(), r.log.Named("admin")),
		WebhookHandler: handlers.NewWebhookHandler(c.PaymentNotifications(), stripe, r.log.Named("webhook")),
		AuthMiddleware: middleware.NewAuthMiddleware(c.AdminTokens(), r.log),
	}
	if c.redis != nil {
		server := c.cfg.Server
		if server.WebhookRatePerMinute > 0 {
			limiter := ratelimit.NewRedisRateLimiter(c.redis, "webhook", server.WebhookRatePerMinute, time.Minute)
			cfg.WebhookLimit = middleware.RateLimit(limiter, r.log)
		}
		if server.AdminRatePerMinute > 0 {
			limiter := ratelimit.NewRedisRateLimiter(c.redis, "admin", server.AdminRatePerMinute, time.Minute)
			cfg.AdminLimit = middleware.RateLimit(limiter, r.log)
		}
	}
	routes.SetupBillingRoutes(r.engine, cfg)
}

func (r *Router) health(ctx *gin.Context) {
	status := gin.H{"status": "ok", "database": "ok"}
	code := http.StatusOK

	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if sqlDB, err := r.container.db.DB(); err != nil || sqlDB.PingContext(pingCtx) != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if r.container.redis != nil {
		if err := r.container.redis.Ping(pingCtx).Err(); err != nil {
			status["redis"] = "unreachable"
		} else {
			status["redis"] = "ok"
		}
	}
	status["scheduler"] = r.container.Scheduler().IsStarted()
	ctx.JSON(code, status)
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
