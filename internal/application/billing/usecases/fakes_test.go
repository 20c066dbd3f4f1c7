package usecases

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/bookwise-inc/bookwise/internal/application/billing/notification"
	"github.com/bookwise-inc/bookwise/internal/application/payment/paymentgateway"
	"github.com/bookwise-inc/bookwise/internal/domain/payment"
	payvo "github.com/bookwise-inc/bookwise/internal/domain/payment/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
	subvo "github.com/bookwise-inc/bookwise/internal/domain/subscription/valueobjects"
	"github.com/bookwise-inc/bookwise/internal/domain/tenant"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// memStore backs the in-memory repositories. Stored aggregates are copies,
// so callers never share state with the store.
type memStore struct {
	mu       sync.Mutex
	subs     map[uint]*subscription.Subscription
	payments map[uint]*payment.Payment
	tenants  map[uint]*tenant.Tenant
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		subs:     map[uint]*subscription.Subscription{},
		payments: map[uint]*payment.Payment{},
		tenants:  map[uint]*tenant.Tenant{},
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

// RunInTransaction restores the maps when fn fails.
func (s *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	subs, pays, tens := maps.Clone(s.subs), maps.Clone(s.payments), maps.Clone(s.tenants)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.subs, s.payments, s.tenants = subs, pays, tens
		s.mu.Unlock()
		return err
	}
	return nil
}

func copySub(sub *subscription.Subscription) *subscription.Subscription {
	c, err := subscription.ReconstructSubscription(sub.ID(), sub.TenantID(), sub.PlanTier(), sub.BillingCycle(),
		sub.Price(), sub.Status(), sub.NextBillingDate(), sub.CurrentPeriodStart(), sub.Metadata(),
		sub.Version(), sub.CreatedAt(), sub.UpdatedAt())
	if err != nil {
		panic(err)
	}
	return c
}

func copyPayment(p *payment.Payment) *payment.Payment {
	c, err := payment.ReconstructPayment(p.ID(), p.OrderNo(), p.SubscriptionID(), p.Amount(), p.BillingCycle(),
		p.Status(), p.PeriodDue(), p.ChargeID(), p.PreferenceID(), p.CheckoutURL(), p.PaidAt(), p.ExpiresAt(),
		p.FailureReason(), p.Version(), p.CreatedAt(), p.UpdatedAt())
	if err != nil {
		panic(err)
	}
	return c
}

type memSubscriptionRepo struct{ s *memStore }

func (r memSubscriptionRepo) Create(ctx context.Context, sub *subscription.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := sub.SetID(r.s.id()); err != nil {
		return err
	}
	r.s.subs[sub.ID()] = copySub(sub)
	return nil
}

func (r memSubscriptionRepo) GetByID(ctx context.Context, id uint) (*subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[id]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return copySub(sub), nil
}

func (r memSubscriptionRepo) GetByTenantID(ctx context.Context, tenantID uint) (*subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subs {
		if sub.TenantID() == tenantID {
			return copySub(sub), nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (r memSubscriptionRepo) Update(ctx context.Context, sub *subscription.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.subs[sub.ID()]
	if !ok {
		return subscription.ErrSubscriptionNotFound
	}
	if cur.Version() != sub.Version()-1 {
		return subscription.ErrVersionConflict
	}
	r.s.subs[sub.ID()] = copySub(sub)
	return nil
}

func (r memSubscriptionRepo) list(match func(*subscription.Subscription) bool) []*subscription.Subscription {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*subscription.Subscription
	for _, sub := range r.s.subs {
		if !sub.PlanTier().IsFree() && match(sub) {
			out = append(out, copySub(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func hasStatus(sub *subscription.Subscription, statuses []subvo.SubscriptionStatus) bool {
	for _, st := range statuses {
		if sub.Status() == st {
			return true
		}
	}
	return false
}

func (r memSubscriptionRepo) FindOverdue(ctx context.Context, now time.Time, statuses ...subvo.SubscriptionStatus) ([]*subscription.Subscription, error) {
	return r.list(func(sub *subscription.Subscription) bool {
		return hasStatus(sub, statuses) && sub.NextBillingDate() != nil && sub.NextBillingDate().Before(now)
	}), nil
}

func (r memSubscriptionRepo) FindDueWithin(ctx context.Context, now, until time.Time) ([]*subscription.Subscription, error) {
	return r.list(func(sub *subscription.Subscription) bool {
		due := sub.NextBillingDate()
		return sub.Status() == subvo.StatusActive && due != nil && due.After(now) && !due.After(until)
	}), nil
}

func (r memSubscriptionRepo) FindByStatus(ctx context.Context, statuses ...subvo.SubscriptionStatus) ([]*subscription.Subscription, error) {
	return r.list(func(sub *subscription.Subscription) bool { return hasStatus(sub, statuses) }), nil
}

type memPaymentRepo struct{ s *memStore }

func (r memPaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := p.SetID(r.s.id()); err != nil {
		return err
	}
	r.s.payments[p.ID()] = copyPayment(p)
	return nil
}

func (r memPaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.payments[p.ID()]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if cur.Version() != p.Version()-1 {
		return payment.ErrVersionConflict
	}
	r.s.payments[p.ID()] = copyPayment(p)
	return nil
}

func (r memPaymentRepo) GetByID(ctx context.Context, id uint) (*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (r memPaymentRepo) GetByChargeID(ctx context.Context, chargeID string) (*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.ChargeID() != nil && *p.ChargeID() == chargeID {
			return copyPayment(p), nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (r memPaymentRepo) GetPendingBySubscriptionID(ctx context.Context, subscriptionID uint) (*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *payment.Payment
	for _, p := range r.s.payments {
		if p.SubscriptionID() == subscriptionID && p.Status() == payvo.PaymentStatusPending {
			if found == nil || p.ID() > found.ID() {
				found = p
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyPayment(found), nil
}

func (r memPaymentRepo) GetLatestApprovedBySubscriptionID(ctx context.Context, subscriptionID uint) (*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *payment.Payment
	for _, p := range r.s.payments {
		if p.SubscriptionID() == subscriptionID && p.Status() == payvo.PaymentStatusApproved && p.PaidAt() != nil {
			if found == nil || p.PaidAt().After(*found.PaidAt()) {
				found = p
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyPayment(found), nil
}

func (r memPaymentRepo) FindExpiredPending(ctx context.Context, now time.Time) ([]*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.s.payments {
		if p.IsExpired(now) {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (r memPaymentRepo) all() []*payment.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.s.payments {
		out = append(out, copyPayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

type memTenantRepo struct{ s *memStore }

func (r memTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.SetID(r.s.id())
	r.s.tenants[t.ID()] = t
	return nil
}

func (r memTenantRepo) GetByID(ctx context.Context, id uint) (*tenant.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return tenant.ReconstructTenant(t.ID(), t.Name(), t.ContactEmail(), t.PlanTier(), t.QuotaLimit(), t.CreatedAt(), t.UpdatedAt()), nil
}

func (r memTenantRepo) UpdatePlan(ctx context.Context, id uint, tier subvo.PlanTier, quota int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	r.s.tenants[id] = tenant.ReconstructTenant(t.ID(), t.Name(), t.ContactEmail(), tier, quota, t.CreatedAt(), t.UpdatedAt())
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (q *recordingQueue) Enqueue(n notification.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, n)
	return true
}

func (q *recordingQueue) kinds() []subscription.NotificationKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]subscription.NotificationKind, len(q.sent))
	for i, n := range q.sent {
		out[i] = n.Kind
	}
	return out
}

func (q *recordingQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdempotency) Seen(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memIdempotency) Mark(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	m.keys[key] = true
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []subscription.StatusChangedEvent
}

func (p *recordingPublisher) PublishStatusChanged(ctx context.Context, evt subscription.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

// harness wires the billing use cases over in-memory storage and the mock gateway.
type harness struct {
	store        *memStore
	subs         memSubscriptionRepo
	payments     memPaymentRepo
	tenants      memTenantRepo
	gateway      *paymentgateway.MockGateway
	queue        *recordingQueue
	events       *recordingPublisher
	idem         *memIdempotency
	transitioner *Transitioner
	charges      *ChargeManager
	validations  *RunValidationsUseCase
	renewals     *RunRenewalsUseCase
	webhook      *HandlePaymentNotificationUseCase
	clock        time.Time
}

func newHarness(now time.Time) *harness {
	h := &harness{
		store:   newMemStore(),
		gateway: paymentgateway.NewMockGateway(),
		queue:   &recordingQueue{},
		events:  &recordingPublisher{},
		idem:    &memIdempotency{},
		clock:   now,
	}
	h.subs = memSubscriptionRepo{h.store}
	h.payments = memPaymentRepo{h.store}
	h.tenants = memTenantRepo{h.store}
	log := logger.NewNop()
	clock := func() time.Time { return h.clock }

	h.transitioner = NewTransitioner(h.subs, h.tenants, h.store, NewKeyedMutex(), subscription.DefaultPolicy(), h.queue, log)
	h.transitioner.SetEventPublisher(h.events)
	h.transitioner.now = clock
	h.charges = NewChargeManager(h.payments, h.gateway, h.transitioner, 72*time.Hour, time.Second, log)

	h.validations = NewRunValidationsUseCase(h.subs, h.transitioner, h.charges, 1, log)
	h.validations.now = clock
	h.renewals = NewRunRenewalsUseCase(h.subs, h.payments, h.tenants, h.transitioner, h.charges,
		RenewalSettings{LeadDays: []int{7, 3, 1}, LookaheadDays: 7, Workers: 1}, log)
	h.renewals.now = clock
	h.webhook = NewHandlePaymentNotificationUseCase(h.payments, h.gateway, h.charges, h.idem, log)
	h.webhook.now = clock
	return h
}

// seedPaid creates a tenant on the basic plan and its ACTIVE subscription due at due.
func (h *harness) seedPaid(due time.Time) (*tenant.Tenant, *subscription.Subscription) {
	ctx := context.Background()
	t, err := tenant.NewTenant("Salon Aurora", "owner@aurora.test", due.AddDate(0, -2, 0))
	if err != nil {
		panic(err)
	}
	_ = h.tenants.Create(ctx, t)
	_ = h.tenants.UpdatePlan(ctx, t.ID(), subvo.PlanTierBasic, subvo.PlanTierBasic.Quota())

	sub, err := subscription.NewPaidSubscription(t.ID(), subvo.PlanTierBasic, subvo.BillingCycleMonthly,
		subvo.NewMoney(2990, "BRL"), due.AddDate(0, -1, 0))
	if err != nil {
		panic(err)
	}
	_ = h.subs.Create(ctx, sub)
	return t, sub
}

func (h *harness) sub(id uint) *subscription.Subscription {
	s, err := h.subs.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return s
}

func (h *harness) tenant(id uint) *tenant.Tenant {
	t, err := h.tenants.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return t
}
