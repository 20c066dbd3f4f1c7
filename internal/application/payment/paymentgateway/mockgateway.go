package paymentgateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	vo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
)

// MockGateway is an in-memory gateway for local runs and tests. Charges stay
// PENDING until SetStatus is called.
type MockGateway struct {
	mu          sync.Mutex
	charges     map[string]*ChargeStatus
	byKey       map[string]*CreateChargeResponse
	seq         int
	createCalls int
	statusCalls int
	unavailable bool
	expiry      func(req CreateChargeRequest) time.Time
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		charges: make(map[string]*ChargeStatus),
		byKey:   make(map[string]*CreateChargeResponse),
	}
}

func (m *MockGateway) CreateRenewalCharge(ctx context.Context, req CreateChargeRequest) (*CreateChargeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.unavailable {
		return nil, fmt.Errorf("create charge: %w", ErrGatewayUnavailable)
	}
	if resp, ok := m.byKey[req.IdempotencyKey]; ok {
		c := *resp
		return &c, nil
	}
	m.seq++
	chargeID := fmt.Sprintf("mock_ch_%d", m.seq)
	resp := &CreateChargeResponse{
		ChargeID:     chargeID,
		PreferenceID: fmt.Sprintf("mock_pref_%d", m.seq),
		CheckoutURL:  fmt.Sprintf("https://checkout.mock.local/pay/%s", chargeID),
	}
	if m.expiry != nil {
		resp.ExpiresAt = m.expiry(req)
	}
	m.byKey[req.IdempotencyKey] = resp
	m.charges[chargeID] = &ChargeStatus{ChargeID: chargeID, Status: vo.PaymentStatusPending}
	c := *resp
	return &c, nil
}

func (m *MockGateway) GetChargeStatus(ctx context.Context, chargeID string) (*ChargeStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.unavailable {
		return nil, fmt.Errorf("get charge %s: %w", chargeID, ErrGatewayUnavailable)
	}
	st, ok := m.charges[chargeID]
	if !ok {
		return nil, fmt.Errorf("charge %s: %w", chargeID, ErrChargeNotFound)
	}
	c := *st
	return &c, nil
}

// SetStatus settles a charge as a payer would.
func (m *MockGateway) SetStatus(chargeID string, status vo.PaymentStatus, paidAt *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[chargeID] = &ChargeStatus{ChargeID: chargeID, Status: status, PaidAt: paidAt}
}

// SetChargeExpiry makes new charges report a gateway-side expiry, as a
// gateway with a shorter maximum checkout lifetime would.
func (m *MockGateway) SetChargeExpiry(fn func(req CreateChargeRequest) time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = fn
}

// SetUnavailable makes every call fail with ErrGatewayUnavailable.
func (m *MockGateway) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

func (m *MockGateway) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *MockGateway) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}
