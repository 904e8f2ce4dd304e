package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/timeless/internal/core/domain"
)

type mockWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closes int
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func TestPublishCheckoutCreated(t *testing.T) {
	w := &mockWriter{}
	p := newKafkaPublisher(w)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err := p.PublishCheckoutCreated(context.Background(), domain.CheckoutSession{
		ID: "cs_1", CartID: 42, UserID: 7, AmountTotal: 1999, Status: domain.CheckoutStatusPending, CreatedAt: created,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventCheckoutSessionCreated, string(msg.Headers[0].Value))

	var ev CheckoutEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, CheckoutEvent{
		Type: EventCheckoutSessionCreated, SessionID: "cs_1", CartID: 42, UserID: 7,
		AmountTotal: 1999, Status: "pending", OccurredAt: created,
	}, ev)
}

func TestPublishCheckoutCreated_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(w)

	err := p.PublishCheckoutCreated(context.Background(), domain.CheckoutSession{ID: "cs_1"})
	assert.ErrorIs(t, err, w.err)
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &mockWriter{}
	p := newKafkaPublisher(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closes)

	err := p.PublishCheckoutCreated(context.Background(), domain.CheckoutSession{ID: "cs_1"})
	assert.ErrorIs(t, err, ErrPublisherClosed)
}
