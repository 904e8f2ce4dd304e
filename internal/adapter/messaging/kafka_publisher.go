package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/timeless/internal/core/domain"
)

const EventCheckoutSessionCreated = "checkout.session.created"

var ErrPublisherClosed = errors.New("publisher closed")

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CheckoutEvent struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	CartID      int64     `json:"cart_id"`
	UserID      int64     `json:"user_id"`
	AmountTotal int64     `json:"amount_total"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// KafkaPublisher writes checkout events keyed by cart id so events of one
// cart stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	closed atomic.Bool
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	l := log.With().Str("component", "kafka").Logger()
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error().Msgf(msg, args...)
		}),
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishCheckoutCreated(ctx context.Context, session domain.CheckoutSession) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	value, err := json.Marshal(CheckoutEvent{
		Type:        EventCheckoutSessionCreated,
		SessionID:   session.ID,
		CartID:      session.CartID,
		UserID:      session.UserID,
		AmountTotal: int64(session.AmountTotal),
		Status:      string(session.Status),
		OccurredAt:  session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode checkout event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(session.CartID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventCheckoutSessionCreated)},
		},
	})
	if err != nil {
		return fmt.Errorf("write checkout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
