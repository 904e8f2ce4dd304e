package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rl1809/timeless/internal/core/domain"
)

// Mock CatalogReader
type mockCatalog struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	calls    int
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[int64]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) setPrice(productID int64, price domain.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.Price = price
	m.products[productID] = p
}

// Mock CartRepository
type mockCartRepo struct {
	mu       sync.Mutex
	catalog  *mockCatalog
	carts    map[int64]map[int64]domain.CartItem
	clearErr error
	clears   int
}

func newMockCartRepo(catalog *mockCatalog, cartIDs ...int64) *mockCartRepo {
	m := &mockCartRepo{
		catalog: catalog,
		carts:   make(map[int64]map[int64]domain.CartItem),
	}
	for _, id := range cartIDs {
		m.carts[id] = make(map[int64]domain.CartItem)
	}
	return m
}

func (m *mockCartRepo) GetCart(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		p := m.catalog.products[it.ProductID]
		lines = append(lines, domain.CartLine{
			CartItem:     it,
			Name:         p.Name,
			CatalogPrice: p.Price,
			PriceRef:     p.PriceRef,
		})
	}
	return lines, nil
}

func (m *mockCartRepo) InsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.carts[item.CartID]
	if !ok {
		return domain.CartItem{}, domain.ErrNotFound
	}
	if _, exists := items[item.ProductID]; exists {
		return domain.CartItem{}, domain.ErrConflict
	}
	items[item.ProductID] = item
	return item, nil
}

func (m *mockCartRepo) UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.carts[item.CartID]
	if !ok {
		return domain.CartItem{}, domain.ErrNotFound
	}
	items[item.ProductID] = item
	return item, nil
}

func (m *mockCartRepo) DeleteItem(ctx context.Context, cartID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.carts[cartID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(items, productID)
	return nil
}

func (m *mockCartRepo) ClearCart(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.carts[cartID]; !ok {
		return domain.ErrNotFound
	}
	m.carts[cartID] = make(map[int64]domain.CartItem)
	return nil
}

func (m *mockCartRepo) lineCount(cartID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[cartID])
}

// Mock PaymentProvider
type mockProvider struct {
	mu       sync.Mutex
	calls    int
	requests []domain.CheckoutRequest
	err      error
	event    domain.PaymentEvent
	eventErr error
	// block, when set, holds CreateSession until closed
	block   chan struct{}
	entered chan struct{}
}

func (m *mockProvider) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.CheckoutSession{}, m.err
	}
	return domain.CheckoutSession{
		ID:  "cs_test_" + req.IdempotencyKey,
		URL: "https://pay.example.com/c/" + req.IdempotencyKey,
	}, nil
}

func (m *mockProvider) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	if m.eventErr != nil {
		return domain.PaymentEvent{}, m.eventErr
	}
	return m.event, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock CheckoutLocker
type mockLocker struct {
	mu    sync.Mutex
	held  map[int64]string
	seq   int
	err   error
	freed int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[int64]string)}
}

func (m *mockLocker) AcquireCheckoutLock(ctx context.Context, cartID int64, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	if _, ok := m.held[cartID]; ok {
		return "", false, nil
	}
	m.seq++
	token := "lock-" + strconv.Itoa(m.seq)
	m.held[cartID] = token
	return token, true, nil
}

func (m *mockLocker) ReleaseCheckoutLock(ctx context.Context, cartID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[cartID] == token {
		delete(m.held, cartID)
		m.freed++
	}
	return nil
}

// Mock CheckoutRepository
type mockCheckoutRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.CheckoutSession
	err      error
}

func newMockCheckoutRepo() *mockCheckoutRepo {
	return &mockCheckoutRepo{sessions: make(map[string]domain.CheckoutSession)}
}

func (m *mockCheckoutRepo) SaveCheckoutSession(ctx context.Context, session domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.sessions[session.ID]; !ok {
		m.sessions[session.ID] = session
	}
	return nil
}

func (m *mockCheckoutRepo) UpdateCheckoutStatus(ctx context.Context, sessionID string, status domain.CheckoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	m.sessions[sessionID] = s
	return nil
}

func (m *mockCheckoutRepo) GetCheckoutSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return domain.CheckoutSession{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockCheckoutRepo) get(id string) (domain.CheckoutSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Mock EventPublisher
type mockPublisher struct {
	mu        sync.Mutex
	published []domain.CheckoutSession
}

func (m *mockPublisher) PublishCheckoutCreated(ctx context.Context, session domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, session)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// Mock UserRepository
type mockUserRepo struct {
	mu     sync.Mutex
	users  map[string]domain.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]domain.User)}
}

func (m *mockUserRepo) CreateUserWithCart(ctx context.Context, username, passwordHash string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return domain.User{}, domain.ErrConflict
	}
	m.nextID++
	u := domain.User{ID: m.nextID, Username: username, PasswordHash: passwordHash, CartID: m.nextID + 100, CreatedAt: time.Now()}
	m.users[username] = u
	return u, nil
}

func (m *mockUserRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// plainHasher stores "hashed:" + password
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (plainHasher) Compare(hash, password string) bool  { return hash == "hashed:"+password }

// Mock TokenMaker
type mockTokens struct {
	mu     sync.Mutex
	issued map[string]domain.Identity
}

func newMockTokens() *mockTokens {
	return &mockTokens{issued: make(map[string]domain.Identity)}
}

func (m *mockTokens) CreateToken(identity domain.Identity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "tok-" + identity.Username
	m.issued[token] = identity
	return token, nil
}

func (m *mockTokens) VerifyToken(token string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.issued[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return id, nil
}

var errProviderDown = errors.New("provider: connection reset")
