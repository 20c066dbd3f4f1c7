// Package metrics exposes billing engine counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
)

const namespace = "bookwise"

// BillingCollector records lifecycle transitions, job runs, webhook results,
// notification deliveries and gateway calls on its own registry.
type BillingCollector struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobFailures     *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewBillingCollector() *BillingCollector {
	reg := prometheus.NewRegistry()
	c := &BillingCollector{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "transitions_total",
			Help:      "Subscription status transitions by source",
		}, []string{"source", "from", "to"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "job_runs_total",
			Help:      "Completed billing job runs",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "job_duration_seconds",
			Help:      "Billing job run duration",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "subscription_failures_total",
			Help:      "Subscriptions a billing job could not process",
		}, []string{"job"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payment_notifications_total",
			Help:      "Payment notifications by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Tenant notification delivery attempts",
		}, []string{"kind", "status"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Payment gateway calls by outcome",
		}, []string{"operation", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Payment gateway call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "breaker_open",
			Help:      "1 while the gateway circuit breaker is open, 0.5 while half-open",
		}, []string{"name"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.transitions, c.jobRuns, c.jobDuration, c.jobFailures, c.webhooks,
		c.notifications, c.gatewayCalls, c.gatewayDuration, c.breakerState,
		c.httpRequests, c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *BillingCollector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *BillingCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *BillingCollector) TransitionApplied(source, from, to string) {
	c.transitions.WithLabelValues(source, from, to).Inc()
}

func (c *BillingCollector) BatchCompleted(job string, d time.Duration, processed, failed int) {
	c.jobRuns.WithLabelValues(job).Inc()
	c.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	if failed > 0 {
		c.jobFailures.WithLabelValues(job).Add(float64(failed))
	}
}

func (c *BillingCollector) WebhookHandled(result string) {
	c.webhooks.WithLabelValues(result).Inc()
}

func (c *BillingCollector) NotificationDelivered(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	c.notifications.WithLabelValues(kind, status).Inc()
}

func (c *BillingCollector) GatewayCall(operation string, d time.Duration, err error) {
	c.gatewayCalls.WithLabelValues(operation, gatewayOutcome(err)).Inc()
	c.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *BillingCollector) BreakerStateChanged(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 0.5
	}
	c.breakerState.WithLabelValues(name).Set(v)
}

func (c *BillingCollector) HTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func gatewayOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, paymentgateway.ErrChargeNotFound):
		return "not_found"
	case errors.Is(err, paymentgateway.ErrGatewayUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
