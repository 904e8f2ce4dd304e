package port

import (
	"context"

	"github.com/rl1809/timeless/internal/core/domain"
)

type PaymentProvider interface {
	// CreateSession asks the provider for a hosted payment session; errors are returned as-is
	CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error)

	// ParseEvent verifies a webhook signature and decodes the event
	ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error)
}

type EventPublisher interface {
	PublishCheckoutCreated(ctx context.Context, session domain.CheckoutSession) error
	Close() error
}
