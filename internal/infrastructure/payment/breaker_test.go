package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

type stubGateway struct {
	mu       sync.Mutex
	calls    int
	statusFn func(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error)
}

func (s *stubGateway) CreateRenewalCharge(ctx context.Context, req paymentgateway.CreateChargeRequest) (*paymentgateway.CreateChargeResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &paymentgateway.CreateChargeResponse{ChargeID: "ch_1", CheckoutURL: "https://pay.test/ch_1"}, nil
}

func (s *stubGateway) GetChargeStatus(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.statusFn(ctx, id)
}

func (s *stubGateway) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingObserver struct {
	mu     sync.Mutex
	calls  []string
	states []string
}

func (o *recordingObserver) GatewayCall(op string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op)
}

func (o *recordingObserver) BreakerStateChanged(name, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func TestBreakerGateway_PassesThrough(t *testing.T) {
	stub := &stubGateway{statusFn: func(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error) {
		return &paymentgateway.ChargeStatus{ChargeID: id, Status: vo.PaymentStatusApproved}, nil
	}}
	obs := &recordingObserver{}
	g := NewBreakerGateway(stub, BreakerSettings{Name: "test", Timeout: time.Second, Failures: 2, OpenFor: time.Minute}, obs, logger.NewNop())

	resp, err := g.CreateRenewalCharge(context.Background(), paymentgateway.CreateChargeRequest{OrderNo: "o1"})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", resp.ChargeID)

	st, err := g.GetChargeStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusApproved, st.Status)
	assert.Equal(t, []string{"create_charge", "get_status"}, obs.calls)
}

func TestBreakerGateway_TimeoutIsUnavailable(t *testing.T) {
	stub := &stubGateway{statusFn: func(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := NewBreakerGateway(stub, BreakerSettings{Name: "test", Timeout: 20 * time.Millisecond, Failures: 5, OpenFor: time.Minute}, nil, logger.NewNop())

	_, err := g.GetChargeStatus(context.Background(), "ch_1")
	assert.ErrorIs(t, err, paymentgateway.ErrGatewayUnavailable)
}

func TestBreakerGateway_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubGateway{statusFn: func(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error) {
		return nil, errors.New("connection reset")
	}}
	obs := &recordingObserver{}
	g := NewBreakerGateway(stub, BreakerSettings{Name: "test", Timeout: time.Second, Failures: 2, OpenFor: time.Minute}, obs, logger.NewNop())

	for range 2 {
		_, err := g.GetChargeStatus(context.Background(), "ch_1")
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.GetChargeStatus(context.Background(), "ch_1")
	assert.ErrorIs(t, err, paymentgateway.ErrGatewayUnavailable)
	assert.Equal(t, 2, stub.Calls(), "open circuit must not reach the gateway")
	assert.Equal(t, []string{"open"}, obs.states)
}

func TestBreakerGateway_NotFoundDoesNotTrip(t *testing.T) {
	stub := &stubGateway{statusFn: func(ctx context.Context, id string) (*paymentgateway.ChargeStatus, error) {
		return nil, paymentgateway.ErrChargeNotFound
	}}
	g := NewBreakerGateway(stub, BreakerSettings{Name: "test", Timeout: time.Second, Failures: 1, OpenFor: time.Minute}, nil, logger.NewNop())

	for range 3 {
		_, err := g.GetChargeStatus(context.Background(), "missing")
		assert.ErrorIs(t, err, paymentgateway.ErrChargeNotFound)
	}
	assert.Equal(t, "closed", g.State())
	assert.Equal(t, 3, stub.Calls())
}
