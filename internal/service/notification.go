package service

import (
	"context"
	"log/slog"
	"time"

	"autorent/internal/domain"
)

// Notifier hands lifecycle events to delivery channels (push, email,
// messaging) that live outside the core.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// LogNotifier writes events to the log. It is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.logger.InfoContext(ctx, "event",
		"type", event.Type,
		"booking_id", event.BookingID,
		"claim_id", event.ClaimID,
		"user_id", event.UserID,
		"status", event.Status,
	)
	return nil
}

func bookingEvent(t domain.EventType, b *domain.Booking, data map[string]string) domain.Event {
	return domain.Event{
		Type:       t,
		BookingID:  b.ID,
		UserID:     b.RenterID,
		Status:     string(b.Status),
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

func claimEvent(t domain.EventType, c *domain.Claim) domain.Event {
	return domain.Event{
		Type:       t,
		BookingID:  c.BookingID,
		ClaimID:    c.ID,
		Status:     string(c.Status),
		OccurredAt: time.Now().UTC(),
	}
}

// notify delivers an event. Delivery failures never undo a committed transition.
func notify(ctx context.Context, n Notifier, logger *slog.Logger, event domain.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event); err != nil {
		logger.Warn("failed to deliver event", "type", event.Type, "booking_id", event.BookingID, "error", err)
	}
}
