package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorent/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisherWithChannel(ch, discardLogger())
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := p.Notify(context.Background(), domain.Event{
		Type:       domain.EventBookingSettled,
		BookingID:  "b1",
		UserID:     "renter-1",
		Status:     "completed",
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "booking.settled", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "b1", got.msg.CorrelationId)
	assert.Equal(t, at, got.msg.Timestamp)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, domain.EventBookingSettled, decoded.Type)
	assert.Equal(t, "renter-1", decoded.UserID)

	p.Close()
	assert.True(t, ch.closed)
}

func TestPublisher_Notify_BrokerError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisherWithChannel(ch, discardLogger())

	err := p.Notify(context.Background(), domain.Event{Type: domain.EventClaimOpened})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim.opened")
}
