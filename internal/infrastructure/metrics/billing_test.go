package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
)

func TestBillingCollector_Transitions(t *testing.T) {
	c := NewBillingCollector()

	c.TransitionApplied("validation", "active", "payment_failed")
	c.TransitionApplied("validation", "active", "payment_failed")
	c.TransitionApplied("webhook", "suspended", "active")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("validation", "active", "payment_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("webhook", "suspended", "active")))
}

func TestBillingCollector_BatchCompleted(t *testing.T) {
	c := NewBillingCollector()

	c.BatchCompleted("renewals", 2*time.Second, 10, 0)
	c.BatchCompleted("renewals", time.Second, 4, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobRuns.WithLabelValues("renewals")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.jobFailures.WithLabelValues("renewals")))
}

func TestBillingCollector_GatewayOutcomes(t *testing.T) {
	c := NewBillingCollector()

	c.GatewayCall("get_status", time.Millisecond, nil)
	c.GatewayCall("get_status", time.Millisecond, fmt.Errorf("x: %w", paymentgateway.ErrGatewayUnavailable))
	c.GatewayCall("get_status", time.Millisecond, paymentgateway.ErrChargeNotFound)
	c.GatewayCall("get_status", time.Millisecond, errors.New("boom"))

	for _, outcome := range []string{"ok", "unavailable", "not_found", "error"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(c.gatewayCalls.WithLabelValues("get_status", outcome)), outcome)
	}
}

func TestBillingCollector_BreakerState(t *testing.T) {
	c := NewBillingCollector()

	c.BreakerStateChanged("stripe", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerState.WithLabelValues("stripe")))

	c.BreakerStateChanged("stripe", "half-open")
	assert.Equal(t, 0.5, testutil.ToFloat64(c.breakerState.WithLabelValues("stripe")))

	c.BreakerStateChanged("stripe", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerState.WithLabelValues("stripe")))
}

func TestBillingCollector_NotificationsAndHandler(t *testing.T) {
	c := NewBillingCollector()
	c.NotificationDelivered("renewal_reminder", nil)
	c.NotificationDelivered("renewal_reminder", errors.New("smtp down"))
	c.WebhookHandled("applied")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `bookwise_notification_deliveries_total{kind="renewal_reminder",status="failed"} 1`)
	assert.Contains(t, body, `bookwise_notification_deliveries_total{kind="renewal_reminder",status="sent"} 1`)
	assert.Contains(t, body, `bookwise_billing_payment_notifications_total{result="applied"} 1`)
}
