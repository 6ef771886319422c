package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/metrics"
	"autorent/internal/repository"
)

// errNoop aborts a booking unit of work that found nothing to do.
var errNoop = errors.New("no change")

// lifecycle is the part of booking persistence shared by the booking and
// dispute services: the guarded read-modify-write of one booking and what
// happens after a transition commits.
type lifecycle struct {
	tx       *txRunner
	provider *ProviderClient
	queue    RetryQueue
	cache    BookingCache
	notifier Notifier
	policy   config.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// update loads the booking for update, applies fn and writes it back. If
// fn returns errNoop the unit is rolled back and the booking as read is
// returned without error.
func (l *lifecycle) update(ctx context.Context, bookingID string, fn func(tx repository.Repos, b *domain.Booking) error) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidID
	}

	var (
		out  *domain.Booking
		from domain.BookingStatus
		read *domain.Booking
	)
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		b, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		snapshot := *b
		read = &snapshot
		from = b.Status

		if err := fn(tx, b); err != nil {
			return err
		}
		b.UpdatedAt = l.now()
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if errors.Is(err, errNoop) {
		return read, nil
	}
	if err != nil {
		return nil, err
	}

	if out.Status != from {
		l.transitioned(ctx, from, out)
	} else {
		l.invalidate(ctx, out.ID)
	}
	return out, nil
}

// transitioned runs once a status change committed: metrics, cache,
// events and, for terminal states, the card hold.
func (l *lifecycle) transitioned(ctx context.Context, from domain.BookingStatus, b *domain.Booking) {
	metrics.RecordTransition(string(from), string(b.Status))
	l.logger.Info("booking transitioned", "booking_id", b.ID, "from", from, "to", b.Status)
	l.invalidate(ctx, b.ID)
	notify(ctx, l.notifier, l.logger, bookingEvent(domain.EventBookingTransitioned, b, map[string]string{"from": string(from)}))
	if b.Status.IsTerminal() {
		l.finalizeCard(ctx, b)
	}
}

func (l *lifecycle) invalidate(ctx context.Context, bookingID string) {
	if err := l.cache.Invalidate(ctx, bookingID); err != nil {
		l.logger.Warn("failed to invalidate booking cache", "booking_id", bookingID, "error", err)
	}
}

// finalizeCard captures what the booking drew from the card hold, or
// voids the hold if nothing was drawn. Transient failures are queued.
func (l *lifecycle) finalizeCard(ctx context.Context, b *domain.Booking) {
	if b.CardHoldID == "" {
		return
	}
	op := domain.ProviderVoid
	var err error
	if b.CardCapturedCents > 0 {
		op = domain.ProviderCapture
		err = l.provider.Capture(ctx, b.CardHoldID, b.CardCapturedCents)
	} else {
		err = l.provider.Void(ctx, b.CardHoldID)
	}
	if err == nil {
		return
	}
	if errors.Is(err, ErrProviderDeclined) {
		l.logger.Error("card hold finalization declined", "booking_id", b.ID, "op", op, "error", err)
	}
	l.enqueue(ctx, &domain.ProviderJob{
		Op:          op,
		BookingID:   b.ID,
		UserID:      b.RenterID,
		HoldID:      b.CardHoldID,
		AmountCents: b.CardCapturedCents,
		Currency:    b.Price.Currency,
		LastError:   err.Error(),
	})
}

// voidHold releases a hold that arrived for a booking no longer waiting for it.
func (l *lifecycle) voidHold(ctx context.Context, b *domain.Booking, holdID string) {
	if err := l.provider.Void(ctx, holdID); err != nil {
		l.enqueue(ctx, &domain.ProviderJob{
			Op:        domain.ProviderVoid,
			BookingID: b.ID,
			UserID:    b.RenterID,
			HoldID:    holdID,
			LastError: err.Error(),
		})
	}
}

func (l *lifecycle) enqueue(ctx context.Context, job *domain.ProviderJob) {
	now := l.now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.NotBefore = now.Add(l.policy.QueueBackoff)
	if err := l.queue.Enqueue(ctx, job); err != nil {
		l.logger.Error("failed to enqueue provider job", "op", job.Op, "booking_id", job.BookingID, "error", err)
		return
	}
	l.logger.Warn("provider call queued for retry", "op", job.Op, "booking_id", job.BookingID, "job_id", job.ID)
}

// permit returns ErrNotPermitted unless actorID is the expected party.
func permit(actorID, expected string) error {
	if actorID == "" || actorID != expected {
		return fmt.Errorf("%w: %s", ErrNotPermitted, actorID)
	}
	return nil
}

// moveTo checks the transition and sets the new status.
func moveTo(b *domain.Booking, to domain.BookingStatus) error {
	if err := checkTransition(b, to); err != nil {
		return err
	}
	b.Status = to
	return nil
}
