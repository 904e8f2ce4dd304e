package domain

import "time"

type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusCompleted CheckoutStatus = "completed"
	CheckoutStatusExpired   CheckoutStatus = "expired"
)

// CheckoutLine is the provider-facing form of a cart line.
type CheckoutLine struct {
	PriceRef  string
	Name      string
	UnitPrice Money
	Quantity  int
}

type CheckoutRequest struct {
	CartID         int64
	Lines          []CheckoutLine
	IdempotencyKey string
}

type CheckoutSession struct {
	ID          string
	URL         string
	CartID      int64
	UserID      int64
	AmountTotal Money
	Status      CheckoutStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentEvent is a verified notification from the payment provider.
type PaymentEvent struct {
	Type      string
	SessionID string
	CartID    int64
	Status    CheckoutStatus
}

const (
	PaymentEventSessionCompleted = "checkout.session.completed"
	PaymentEventSessionExpired   = "checkout.session.expired"
)
