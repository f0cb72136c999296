package selforder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"selforder-system/internal/logger"
	"selforder-system/internal/models"
)

func testLogger() *logger.Logger {
	return logger.New("selforder-test")
}

// memStore is an in-memory Store. Conditional updates hold the mutex for the
// whole check-and-set, matching the atomicity the SQL statements provide.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session          // by code
	items    map[string][]models.CartItem        // by session code
	refs     map[string]*models.PaymentReference // by transaction id
	refOwner map[string]string                   // session code -> transaction id
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.Session),
		items:    make(map[string][]models.CartItem),
		refs:     make(map[string]*models.PaymentReference),
		refOwner: make(map[string]string),
	}
}

func (m *memStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.Code]; exists {
		return fmt.Errorf("%w: duplicate session code %s", models.ErrConflict, session.Code)
	}
	copied := *session
	m.sessions[session.Code] = &copied
	return nil
}

func (m *memStore) GetSession(ctx context.Context, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	copied := *session
	return &copied, nil
}

func (m *memStore) ListItems(ctx context.Context, code string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[code]; !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	return append([]models.CartItem(nil), m.items[code]...), nil
}

func (m *memStore) AddItem(ctx context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, session := range m.sessions {
		if session.ID == item.SessionID {
			m.items[code] = append(m.items[code], *item)
			return nil
		}
	}
	return fmt.Errorf("%w: session id %s", models.ErrNotFound, item.SessionID)
}

func (m *memStore) Transition(ctx context.Context, code string, from, to models.SessionStatus) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	if session.Status != from {
		return nil, fmt.Errorf("%w: session %s is no longer %s", models.ErrConflict, code, from)
	}
	session.Status = to
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	return &copied, nil
}

func (m *memStore) MarkOrderCreated(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[code]
	if !ok {
		return false, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	if session.OrderCreated {
		return false, nil
	}
	session.OrderCreated = true
	return true, nil
}

func (m *memStore) UnmarkOrderCreated(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[code]
	if !ok {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	session.OrderCreated = false
	return nil
}

func (m *memStore) ExtendSession(ctx context.Context, code string, minutes int) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, code)
	}
	if session.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: cannot extend session %s in status %s", models.ErrInvalidState, code, session.Status)
	}
	session.ExpiresAt = session.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	return &copied, nil
}

func (m *memStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for code, session := range m.sessions {
		if session.Status == models.SessionActive && now.After(session.ExpiresAt) {
			codes = append(codes, code)
			if len(codes) == limit {
				break
			}
		}
	}
	return codes, nil
}

func (m *memStore) ListReclaimable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for code, session := range m.sessions {
		if session.Status == models.SessionExpired && session.UpdatedAt.Before(cutoff) {
			codes = append(codes, code)
			if len(codes) == limit {
				break
			}
		}
	}
	return codes, nil
}

func (m *memStore) DeleteSession(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, code)
	delete(m.items, code)
	if txn, ok := m.refOwner[code]; ok {
		delete(m.refs, txn)
		delete(m.refOwner, code)
	}
	return nil
}

func (m *memStore) SavePaymentRef(ctx context.Context, ref *models.PaymentReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.refOwner[ref.SessionCode]; ok {
		delete(m.refs, old)
	}
	copied := *ref
	m.refs[ref.TransactionID] = &copied
	m.refOwner[ref.SessionCode] = ref.TransactionID
	return nil
}

func (m *memStore) UpdatePaymentRefStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref, ok := m.refs[transactionID]; ok {
		ref.Status = status
		ref.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *memStore) GetPaymentRef(ctx context.Context, sessionCode string) (*models.PaymentReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.refOwner[sessionCode]
	if !ok {
		return nil, fmt.Errorf("%w: no payment for session %s", models.ErrNotFound, sessionCode)
	}
	copied := *m.refs[txn]
	return &copied, nil
}

func (m *memStore) DeleteStalePaymentRefs(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped int64
	for txn, ref := range m.refs {
		if ref.Status == models.PaymentPending && ref.CreatedAt.Before(cutoff) {
			delete(m.refs, txn)
			delete(m.refOwner, ref.SessionCode)
			dropped++
		}
	}
	return dropped, nil
}

// seedSession inserts a session directly, bypassing the service
func (m *memStore) seedSession(code string, status models.SessionStatus, expiresAt time.Time) *models.Session {
	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		Code:      code,
		OutletID:  "outlet-1",
		Status:    status,
		Language:  "en",
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.sessions[code] = session
	m.mu.Unlock()
	return session
}

// seedItem inserts a cart line directly
func (m *memStore) seedItem(code string, unitPrice int64, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions[code]
	m.items[code] = append(m.items[code], models.CartItem{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		ProductID: "prod-1",
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CreatedAt: time.Now().UTC(),
	})
}

// fakeCatalog resolves prices from a fixed map keyed by product or variant id
type fakeCatalog struct {
	prices map[string]int64
}

func (c *fakeCatalog) ResolvePrice(ctx context.Context, productID string, variantID *string) (int64, error) {
	key := productID
	if variantID != nil {
		key = *variantID
	}
	price, ok := c.prices[key]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", models.ErrNotFound, key)
	}
	return price, nil
}

// fakeOutlets serves fixed tax and service-charge rates
type fakeOutlets struct {
	taxRate     float64
	serviceRate float64
}

func (o *fakeOutlets) Rates(ctx context.Context, outletID string) (float64, float64, error) {
	if outletID == "missing-outlet" {
		return 0, 0, fmt.Errorf("%w: outlet %s", models.ErrNotFound, outletID)
	}
	return o.taxRate, o.serviceRate, nil
}

// fakePublisher records published lifecycle events
type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderLifecycleEvent
	fail   bool
}

func (p *fakePublisher) PublishLifecycleEvent(ctx context.Context, event *models.OrderLifecycleEvent) error {
	if p.fail {
		return fmt.Errorf("publish failed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// fakeFulfillment counts order creations, one order per session id. Setting
// failures makes the next N CreateOrder calls fail, simulating a storage
// outage.
type fakeFulfillment struct {
	mu       sync.Mutex
	orders   map[string]string // session id -> order id
	created  int
	failures int
}

func newFakeFulfillment() *fakeFulfillment {
	return &fakeFulfillment{orders: make(map[string]string)}
}

func (f *fakeFulfillment) CreateOrder(ctx context.Context, session *models.Session, items []models.CartItem, totals models.Totals) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", fmt.Errorf("fulfillment storage unavailable")
	}
	if _, exists := f.orders[session.ID]; exists {
		return "", fmt.Errorf("%w: order already exists for session %s", models.ErrConflict, session.ID)
	}
	orderID := uuid.NewString()
	f.orders[session.ID] = orderID
	f.created++
	return orderID, nil
}

func (f *fakeFulfillment) FindOrderBySession(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orderID, ok := f.orders[sessionID]
	if !ok {
		return "", fmt.Errorf("%w: no order for session %s", models.ErrNotFound, sessionID)
	}
	return orderID, nil
}

// fixture wires the whole selforder core against in-memory collaborators
type fixture struct {
	store       *memStore
	catalog     *fakeCatalog
	outlets     *fakeOutlets
	publisher   *fakePublisher
	fulfillment *fakeFulfillment
	service     *Service
	handoff     *Handoff
	payments    *Orchestrator
	scheduler   *Scheduler
}

func newFixture() *fixture {
	log := testLogger()
	store := newMemStore()
	catalog := &fakeCatalog{prices: map[string]int64{
		"prod-1":    10000,
		"prod-2":    5000,
		"variant-1": 12000,
	}}
	outlets := &fakeOutlets{taxRate: 10, serviceRate: 5}
	publisher := &fakePublisher{}
	fulfillment := newFakeFulfillment()

	handoff := NewHandoff(store, outlets, fulfillment, publisher, log)
	return &fixture{
		store:       store,
		catalog:     catalog,
		outlets:     outlets,
		publisher:   publisher,
		fulfillment: fulfillment,
		service:     NewService(store, catalog, outlets, log, 2*time.Hour, "https://order.example.com"),
		handoff:     handoff,
		payments:    NewOrchestrator(store, outlets, handoff, log, 1, 15*time.Minute),
		scheduler:   NewScheduler(store, log, 5*time.Minute, time.Hour, 24*time.Hour, 15*time.Minute),
	}
}
