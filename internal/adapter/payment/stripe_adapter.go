package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/rl1809/timeless/internal/core/domain"
)

const (
	currencyUSD  = "usd"
	metadataCart = "cart_id"
)

// sessionCreator is satisfied by the checkout session client of stripe-go.
type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type StripeProvider struct {
	sessions sessionCreator
	cfg      StripeConfig
}

// NewStripeProvider builds a client with network retries disabled; a failed
// session request is reported to the caller as-is.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	sc := client.New(cfg.APIKey, stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
	}))
	return &StripeProvider{sessions: sc.CheckoutSessions, cfg: cfg}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	cartRef := strconv.FormatInt(req.CartID, 10)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(cartRef),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		},
		LineItems: make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		params.LineItems = append(params.LineItems, lineItemParams(l))
	}
	params.AddMetadata(metadataCart, cartRef)
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	s, err := p.sessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	return domain.CheckoutSession{
		ID:          s.ID,
		URL:         s.URL,
		CartID:      req.CartID,
		AmountTotal: domain.Money(s.AmountTotal),
	}, nil
}

// lineItemParams uses the catalog's provider price when there is one and
// inline price data otherwise.
func lineItemParams(l domain.CheckoutLine) *stripe.CheckoutSessionLineItemParams {
	item := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(int64(l.Quantity)),
	}
	if l.PriceRef != "" {
		item.Price = stripe.String(l.PriceRef)
		return item
	}
	item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(currencyUSD),
		UnitAmount: stripe.Int64(int64(l.UnitPrice)),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(l.Name),
		},
	}
	return item
}

// ParseEvent verifies the Stripe-Signature header and extracts the checkout
// session carried by session events. Other event types are returned with
// only Type set.
func (p *StripeProvider) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("verify webhook: %w", err)
	}

	out := domain.PaymentEvent{Type: string(event.Type)}
	switch out.Type {
	case domain.PaymentEventSessionCompleted, domain.PaymentEventSessionExpired:
	default:
		return out, nil
	}

	if event.Data == nil {
		return domain.PaymentEvent{}, fmt.Errorf("event %s has no data", event.ID)
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}

	out.SessionID = s.ID
	out.CartID = cartIDFromSession(&s)
	if out.Type == domain.PaymentEventSessionCompleted {
		out.Status = domain.CheckoutStatusCompleted
	} else {
		out.Status = domain.CheckoutStatusExpired
	}
	return out, nil
}

func cartIDFromSession(s *stripe.CheckoutSession) int64 {
	for _, ref := range []string{s.ClientReferenceID, s.Metadata[metadataCart]} {
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
