package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

// CheckoutRecorder drains the checkout queue: each session is persisted
// and, when a publisher is configured, announced downstream.
type CheckoutRecorder struct {
	repo      port.CheckoutRepository
	publisher port.EventPublisher
	timeout   time.Duration
	log       zerolog.Logger
}

// NewCheckoutRecorder accepts a nil publisher.
func NewCheckoutRecorder(repo port.CheckoutRepository, publisher port.EventPublisher, log zerolog.Logger) *CheckoutRecorder {
	return &CheckoutRecorder{
		repo:      repo,
		publisher: publisher,
		timeout:   5 * time.Second,
		log:       log.With().Str("component", "checkout_worker").Logger(),
	}
}

func (r *CheckoutRecorder) Record(ctx context.Context, session domain.CheckoutSession) error {
	if err := r.repo.SaveCheckoutSession(ctx, session); err != nil {
		return fmt.Errorf("save checkout session %s: %w", session.ID, err)
	}
	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.PublishCheckoutCreated(ctx, session); err != nil {
		return fmt.Errorf("publish checkout session %s: %w", session.ID, err)
	}
	return nil
}

// Run processes sessions until queue is closed.
func (r *CheckoutRecorder) Run(id int, queue <-chan domain.CheckoutSession) {
	for session := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)

		if err := r.Record(ctx, session); err != nil {
			r.log.Error().Err(err).Int("worker", id).Str("session_id", session.ID).Msg("failed to record checkout session")
		} else {
			r.log.Debug().Int("worker", id).Str("session_id", session.ID).Msg("recorded checkout session")
		}

		cancel()
	}
}
