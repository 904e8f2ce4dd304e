package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/timeless/internal/core/domain"
)

// MemoryStore keeps users, carts, products and checkout sessions in process
// memory. It backs STORAGE_DRIVER=memory and the handler tests.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[int64]domain.Product
	users     map[string]domain.User
	carts     map[int64]map[int64]domain.CartItem
	checkouts map[string]domain.CheckoutSession
	locks     map[int64]memoryLock
	nextID    int64
}

type memoryLock struct {
	token   string
	expires time.Time
}

func NewMemoryStore(products ...domain.Product) *MemoryStore {
	s := &MemoryStore{
		products:  make(map[int64]domain.Product),
		users:     make(map[string]domain.User),
		carts:     make(map[int64]map[int64]domain.CartItem),
		checkouts: make(map[string]domain.CheckoutSession),
		locks:     make(map[int64]memoryLock),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Matches(p) {
			products = append(products, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch {
		case filter.Sort == domain.SortPriceAsc && a.Price != b.Price:
			return a.Price < b.Price
		case filter.Sort == domain.SortPriceDesc && a.Price != b.Price:
			return a.Price > b.Price
		}
		return a.ID < b.ID
	})
	return products, nil
}

func (s *MemoryStore) GetCart(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}

	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		p := s.products[it.ProductID]
		lines = append(lines, domain.CartLine{
			CartItem:         it,
			Name:             p.Name,
			ShortDescription: p.ShortDescription,
			ImageURL:         p.ImageURL,
			CatalogPrice:     p.Price,
			PriceRef:         p.PriceRef,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *MemoryStore) cartItems(cartID, productID int64) (map[int64]domain.CartItem, error) {
	items, ok := s.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}
	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrNotFound)
	}
	return items, nil
}

func (s *MemoryStore) InsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.cartItems(item.CartID, item.ProductID)
	if err != nil {
		return domain.CartItem{}, err
	}
	if _, exists := items[item.ProductID]; exists {
		return domain.CartItem{}, fmt.Errorf("cart %d product %d: %w", item.CartID, item.ProductID, domain.ErrConflict)
	}
	items[item.ProductID] = item
	return item, nil
}

func (s *MemoryStore) UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.cartItems(item.CartID, item.ProductID)
	if err != nil {
		return domain.CartItem{}, err
	}
	items[item.ProductID] = item
	return item, nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, cartID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}
	delete(items, productID)
	return nil
}

func (s *MemoryStore) ClearCart(ctx context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}
	s.carts[cartID] = make(map[int64]domain.CartItem)
	return nil
}

func (s *MemoryStore) CreateUserWithCart(ctx context.Context, username, passwordHash string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return domain.User{}, fmt.Errorf("username %q: %w", username, domain.ErrConflict)
	}

	s.nextID++
	u := domain.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CartID:       s.nextID,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[username] = u
	s.carts[u.CartID] = make(map[int64]domain.CartItem)
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return domain.User{}, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) SaveCheckoutSession(ctx context.Context, session domain.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkouts[session.ID]; !ok {
		s.checkouts[session.ID] = session
	}
	return nil
}

func (s *MemoryStore) UpdateCheckoutStatus(ctx context.Context, sessionID string, status domain.CheckoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.checkouts[sessionID]
	if !ok {
		return fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
	}
	cs.Status = status
	cs.UpdatedAt = time.Now().UTC()
	s.checkouts[sessionID] = cs
	return nil
}

func (s *MemoryStore) GetCheckoutSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.checkouts[sessionID]
	if !ok {
		return domain.CheckoutSession{}, fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
	}
	return cs, nil
}

func (s *MemoryStore) AcquireCheckoutLock(ctx context.Context, cartID int64, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if l, ok := s.locks[cartID]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[cartID] = memoryLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (s *MemoryStore) ReleaseCheckoutLock(ctx context.Context, cartID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[cartID]; ok && l.token == token {
		delete(s.locks, cartID)
	}
	return nil
}

// SeedProducts is the starter catalog loaded by the memory driver; the
// MySQL schema seeds the same rows.
func SeedProducts() []domain.Product {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Product{
		{ID: 1, Name: "Mariner 40", ShortDescription: "Steel dive watch", LongDescription: "Automatic movement, 200m water resistance, ceramic bezel.", Price: 45000, Category: "dive", InventoryQty: 25, ImageURL: "/images/mariner-40.jpg", CreatedAt: created},
		{ID: 2, Name: "Aviator GMT", ShortDescription: "Dual time pilot watch", LongDescription: "Second time zone hand, sapphire crystal, 42mm case.", Price: 62500, Category: "pilot", InventoryQty: 12, ImageURL: "/images/aviator-gmt.jpg", CreatedAt: created},
		{ID: 3, Name: "Dress Classic", ShortDescription: "Slim two-hand dress watch", LongDescription: "Hand-wound movement, 7mm case, alligator strap.", Price: 38000, Category: "dress", InventoryQty: 8, ImageURL: "/images/dress-classic.jpg", CreatedAt: created},
		{ID: 4, Name: "Field Chrono", ShortDescription: "Tool chronograph", LongDescription: "Mechanical chronograph, 41mm, luminous dial.", Price: 29900, Category: "field", InventoryQty: 30, ImageURL: "/images/field-chrono.jpg", CreatedAt: created},
		{ID: 5, Name: "Leather Strap", ShortDescription: "20mm calfskin strap", LongDescription: "Quick-release pins, brushed buckle.", Price: 4500, Category: "accessories", InventoryQty: 200, ImageURL: "/images/leather-strap.jpg", CreatedAt: created},
	}
}
