package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

var ErrCheckoutInProgress = errors.New("checkout already in progress")

const enqueueTimeout = 5 * time.Second

// CheckoutService turns the current contents of a cart into a hosted
// payment session. Created sessions are handed to a queue for recording.
type CheckoutService struct {
	carts        port.CartRepository
	checkouts    port.CheckoutRepository
	provider     port.PaymentProvider
	locker       port.CheckoutLocker
	lockTTL      time.Duration
	sessionQueue chan domain.CheckoutSession
	tracer       trace.Tracer
	log          zerolog.Logger
}

type CheckoutConfig struct {
	LockTTL   time.Duration
	QueueSize int
}

func NewCheckoutService(
	carts port.CartRepository,
	checkouts port.CheckoutRepository,
	provider port.PaymentProvider,
	locker port.CheckoutLocker,
	cfg CheckoutConfig,
	log zerolog.Logger,
) *CheckoutService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &CheckoutService{
		carts:        carts,
		checkouts:    checkouts,
		provider:     provider,
		locker:       locker,
		lockTTL:      cfg.LockTTL,
		sessionQueue: make(chan domain.CheckoutSession, cfg.QueueSize),
		tracer:       otel.Tracer("github.com/rl1809/timeless/checkout"),
		log:          log.With().Str("component", "checkout").Logger(),
	}
}

// CreateCheckoutSession reads the caller's cart, asks the provider for a
// session and empties the cart once the provider has accepted it.
// The provider is called at most once per invocation.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, identity domain.Identity) (domain.CheckoutSession, error) {
	ctx, span := s.tracer.Start(ctx, "CreateCheckoutSession",
		trace.WithAttributes(attribute.Int64("cart.id", identity.CartID)))
	defer span.End()

	session, err := s.createSession(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.CheckoutSession{}, err
	}
	span.SetAttributes(attribute.String("checkout.session_id", session.ID))
	return session, nil
}

func (s *CheckoutService) createSession(ctx context.Context, identity domain.Identity) (domain.CheckoutSession, error) {
	cartID := identity.CartID
	if cartID <= 0 {
		return domain.CheckoutSession{}, fmt.Errorf("checkout cart %d: %w", cartID, domain.ErrInvalidInput)
	}

	token, ok, err := s.locker.AcquireCheckoutLock(ctx, cartID, s.lockTTL)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return domain.CheckoutSession{}, fmt.Errorf("cart %d: %w: %w", cartID, domain.ErrConflict, ErrCheckoutInProgress)
	}
	defer func() {
		if err := s.locker.ReleaseCheckoutLock(context.WithoutCancel(ctx), cartID, token); err != nil {
			s.log.Warn().Err(err).Int64("cart_id", cartID).Msg("release checkout lock")
		}
	}()

	lines, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("read cart %d: %w", cartID, err)
	}
	if len(lines) == 0 {
		return domain.CheckoutSession{}, fmt.Errorf("cart %d is empty: %w", cartID, domain.ErrInvalidState)
	}

	req := domain.CheckoutRequest{
		CartID:         cartID,
		Lines:          make([]domain.CheckoutLine, 0, len(lines)),
		IdempotencyKey: uuid.NewString(),
	}
	for _, l := range lines {
		req.Lines = append(req.Lines, domain.CheckoutLine{
			PriceRef:  l.PriceRef,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	session, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		s.log.Error().Err(err).Int64("cart_id", cartID).Str("idempotency_key", req.IdempotencyKey).Msg("provider rejected checkout")
		return domain.CheckoutSession{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}

	now := time.Now()
	session.CartID = cartID
	session.UserID = identity.UserID
	session.Status = domain.CheckoutStatusPending
	if session.AmountTotal == 0 {
		session.AmountTotal = domain.CartTotal(lines)
	}
	session.CreatedAt = now
	session.UpdatedAt = now

	// The session exists at the provider from here on, so the rest must not
	// depend on the caller still waiting.
	post := context.WithoutCancel(ctx)
	if err := s.carts.ClearCart(post, cartID); err != nil {
		s.log.Error().Err(err).Int64("cart_id", cartID).Str("session_id", session.ID).Msg("clear cart after checkout")
	}

	enqueueCtx, cancel := context.WithTimeout(post, enqueueTimeout)
	defer cancel()
	select {
	case s.sessionQueue <- session:
	case <-enqueueCtx.Done():
		s.log.Error().Str("session_id", session.ID).Msg("checkout session not queued: queue full")
	}

	s.log.Info().Int64("cart_id", cartID).Str("session_id", session.ID).Int("lines", len(lines)).Msg("checkout session created")
	return session, nil
}

// HandleWebhook verifies and applies a provider notification.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		return fmt.Errorf("parse payment event: %w: %w", domain.ErrInvalidInput, err)
	}
	return s.HandleEvent(ctx, event)
}

// HandleEvent applies a verified provider event to the recorded session.
// The cart is left alone: it was emptied when the session was created and
// may hold new items by now.
func (s *CheckoutService) HandleEvent(ctx context.Context, event domain.PaymentEvent) error {
	log := s.log.With().Str("event", event.Type).Str("session_id", event.SessionID).Logger()

	var status domain.CheckoutStatus
	switch event.Type {
	case domain.PaymentEventSessionCompleted:
		status = domain.CheckoutStatusCompleted
	case domain.PaymentEventSessionExpired:
		status = domain.CheckoutStatusExpired
	default:
		log.Debug().Msg("ignoring payment event")
		return nil
	}

	if err := s.checkouts.UpdateCheckoutStatus(ctx, event.SessionID, status); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("update checkout %s: %w", event.SessionID, err)
		}
		// the worker may not have recorded the session yet
		log.Warn().Msg("payment event for unrecorded session")
	}

	log.Info().Str("status", string(status)).Msg("payment event applied")
	return nil
}

// GetCheckoutSession returns a recorded session owned by the caller's cart.
func (s *CheckoutService) GetCheckoutSession(ctx context.Context, identity domain.Identity, sessionID string) (domain.CheckoutSession, error) {
	if sessionID == "" {
		return domain.CheckoutSession{}, fmt.Errorf("empty session id: %w", domain.ErrInvalidInput)
	}
	session, err := s.checkouts.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("get checkout %s: %w", sessionID, err)
	}
	if session.CartID != identity.CartID {
		return domain.CheckoutSession{}, fmt.Errorf("checkout %s: %w", sessionID, domain.ErrForbidden)
	}
	return session, nil
}

func (s *CheckoutService) GetCheckoutQueue() <-chan domain.CheckoutSession {
	return s.sessionQueue
}

func (s *CheckoutService) Close() {
	close(s.sessionQueue)
}
