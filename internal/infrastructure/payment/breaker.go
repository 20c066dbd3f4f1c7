package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// GatewayObserver receives per-call timings and breaker state changes.
type GatewayObserver interface {
	GatewayCall(operation string, d time.Duration, err error)
	BreakerStateChanged(name, state string)
}

type BreakerSettings struct {
	Name string
	// Timeout bounds every gateway call.
	Timeout time.Duration
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// OpenFor is how long the circuit stays open before probing again.
	OpenFor time.Duration
}

// BreakerGateway guards a gateway with a per-call timeout and a circuit
// breaker. Every failure that is not a definite answer from the gateway comes
// back wrapped in ErrGatewayUnavailable.
type BreakerGateway struct {
	next     paymentgateway.PaymentGateway
	breaker  *gobreaker.CircuitBreaker[any]
	timeout  time.Duration
	observer GatewayObserver
	logger   logger.Interface
}

func NewBreakerGateway(next paymentgateway.PaymentGateway, st BreakerSettings, observer GatewayObserver, log logger.Interface) *BreakerGateway {
	if st.Failures == 0 {
		st.Failures = 5
	}
	if st.Timeout <= 0 {
		st.Timeout = 10 * time.Second
	}
	g := &BreakerGateway{
		next:     next,
		timeout:  st.Timeout,
		observer: observer,
		logger:   log.With("component", "payment.breaker"),
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warnw("gateway circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if g.observer != nil {
				g.observer.BreakerStateChanged(name, to.String())
			}
		},
		// a missing charge is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, paymentgateway.ErrChargeNotFound)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return g
}

func (g *BreakerGateway) CreateRenewalCharge(ctx context.Context, req paymentgateway.CreateChargeRequest) (*paymentgateway.CreateChargeResponse, error) {
	res, err := g.call(ctx, "create_charge", func(ctx context.Context) (any, error) {
		return g.next.CreateRenewalCharge(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*paymentgateway.CreateChargeResponse), nil
}

func (g *BreakerGateway) GetChargeStatus(ctx context.Context, chargeID string) (*paymentgateway.ChargeStatus, error) {
	res, err := g.call(ctx, "get_status", func(ctx context.Context) (any, error) {
		return g.next.GetChargeStatus(ctx, chargeID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*paymentgateway.ChargeStatus), nil
}

// State exposes the breaker state for status endpoints.
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}

func (g *BreakerGateway) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	started := time.Now()
	res, err := g.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	err = classifyCallError(err)
	if g.observer != nil {
		g.observer.GatewayCall(op, time.Since(started), err)
	}
	return res, err
}

func classifyCallError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, paymentgateway.ErrGatewayUnavailable),
		errors.Is(err, paymentgateway.ErrChargeNotFound):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open", paymentgateway.ErrGatewayUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout", paymentgateway.ErrGatewayUnavailable)
	default:
		return err
	}
}
