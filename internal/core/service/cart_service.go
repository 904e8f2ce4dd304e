package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

// CartService applies add/update/remove operations to a single cart.
// Prices are always taken from the catalog at mutation time.
type CartService struct {
	repo    port.CartRepository
	catalog port.CatalogReader
	log     zerolog.Logger
}

func NewCartService(repo port.CartRepository, catalog port.CatalogReader, log zerolog.Logger) *CartService {
	return &CartService{
		repo:    repo,
		catalog: catalog,
		log:     log.With().Str("component", "cart").Logger(),
	}
}

func (s *CartService) GetCart(ctx context.Context, cartID int64) ([]domain.CartLine, error) {
	if cartID <= 0 {
		return nil, fmt.Errorf("cart %d: %w", cartID, domain.ErrNotFound)
	}

	lines, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart %d: %w", cartID, err)
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines, nil
}

// AddItem creates a new line. An existing line for the product fails with
// domain.ErrConflict; callers change quantities through SetQuantity.
func (s *CartService) AddItem(ctx context.Context, cartID, productID int64, quantity int) (domain.CartItem, error) {
	if cartID <= 0 || productID <= 0 || quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("add item cart=%d product=%d qty=%d: %w", cartID, productID, quantity, domain.ErrInvalidInput)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("lookup product %d: %w", productID, err)
	}

	item, err := s.repo.InsertItem(ctx, domain.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("insert item cart=%d product=%d: %w", cartID, productID, err)
	}

	s.log.Debug().Int64("cart_id", cartID).Int64("product_id", productID).Int("quantity", quantity).Msg("item added")
	return item, nil
}

// SetQuantity overwrites the quantity of a line, creating it if needed.
// A quantity of zero or less removes the line and returns a nil item.
func (s *CartService) SetQuantity(ctx context.Context, cartID, productID int64, quantity int) (*domain.CartItem, error) {
	if cartID <= 0 || productID <= 0 {
		return nil, fmt.Errorf("set quantity cart=%d product=%d: %w", cartID, productID, domain.ErrInvalidInput)
	}

	if quantity <= 0 {
		if err := s.RemoveItem(ctx, cartID, productID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lookup product %d: %w", productID, err)
	}

	item, err := s.repo.UpsertItem(ctx, domain.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert item cart=%d product=%d: %w", cartID, productID, err)
	}

	s.log.Debug().Int64("cart_id", cartID).Int64("product_id", productID).Int("quantity", quantity).Msg("quantity set")
	return &item, nil
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, productID int64) error {
	if cartID <= 0 || productID <= 0 {
		return fmt.Errorf("remove item cart=%d product=%d: %w", cartID, productID, domain.ErrInvalidInput)
	}
	if err := s.repo.DeleteItem(ctx, cartID, productID); err != nil {
		return fmt.Errorf("delete item cart=%d product=%d: %w", cartID, productID, err)
	}
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, cartID int64) error {
	if err := s.repo.ClearCart(ctx, cartID); err != nil {
		return fmt.Errorf("clear cart %d: %w", cartID, err)
	}
	return nil
}
