package port

import (
	"context"
	"time"

	"github.com/rl1809/timeless/internal/core/domain"
)

type ProductCache interface {
	// GetProduct returns (product, true) on a hit
	GetProduct(ctx context.Context, productID int64) (domain.Product, bool, error)

	SetProduct(ctx context.Context, product domain.Product, ttl time.Duration) error
}

type CheckoutLocker interface {
	// AcquireCheckoutLock returns a release token and false if another checkout holds the cart
	AcquireCheckoutLock(ctx context.Context, cartID int64, ttl time.Duration) (string, bool, error)

	// ReleaseCheckoutLock releases the lock only if token still owns it
	ReleaseCheckoutLock(ctx context.Context, cartID int64, token string) error
}
