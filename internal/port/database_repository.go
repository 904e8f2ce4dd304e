package port

import (
	"context"

	"github.com/rl1809/timeless/internal/core/domain"
)

type CatalogReader interface {
	// GetProduct returns domain.ErrNotFound for an unknown id
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)

	// ListProducts returns the catalog narrowed by filter
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
}

type CartRepository interface {
	// GetCart returns the cart's lines joined with product fields, domain.ErrNotFound if the cart is unknown
	GetCart(ctx context.Context, cartID int64) ([]domain.CartLine, error)

	// InsertItem creates a line, domain.ErrConflict if (cart, product) already exists
	InsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error)

	// UpsertItem creates or overwrites quantity and unit price of a line in one atomic write
	UpsertItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error)

	// DeleteItem removes a line; absent lines are not an error
	DeleteItem(ctx context.Context, cartID, productID int64) error

	// ClearCart removes every line of the cart
	ClearCart(ctx context.Context, cartID int64) error
}

type UserRepository interface {
	// CreateUserWithCart inserts the user and its cart in one transaction, domain.ErrConflict on a taken username
	CreateUserWithCart(ctx context.Context, username, passwordHash string) (domain.User, error)

	// GetUserByUsername returns domain.ErrNotFound for an unknown username
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type CheckoutRepository interface {
	// SaveCheckoutSession persists a created session; saving the same id twice is a no-op
	SaveCheckoutSession(ctx context.Context, session domain.CheckoutSession) error

	// UpdateCheckoutStatus sets the status of a recorded session, domain.ErrNotFound if unknown
	UpdateCheckoutStatus(ctx context.Context, sessionID string, status domain.CheckoutStatus) error

	GetCheckoutSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error)
}
