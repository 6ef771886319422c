package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autorent/internal/config"
	"autorent/internal/domain"
)

const retryPollTimeout = 5 * time.Second

// RetryWorker replays provider calls that failed transiently. Jobs that
// keep failing are parked for manual review.
type RetryWorker struct {
	queue    JobQueue
	provider *ProviderClient
	bookings *BookingService
	ledger   *Ledger
	notifier Notifier
	policy   config.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// Run processes jobs until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx, retryPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue provider job", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		if wait := job.NotBefore.Sub(w.now()); wait > 0 {
			if err := w.queue.Enqueue(ctx, job); err != nil {
				w.logger.Error("failed to requeue provider job", "job_id", job.ID, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(min(wait, retryPollTimeout)):
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job. A transient failure requeues it with a longer
// delay; the last allowed attempt sends it to manual review instead.
func (w *RetryWorker) Process(ctx context.Context, job *domain.ProviderJob) {
	err := w.execute(ctx, job)
	if err == nil {
		w.logger.Info("provider job succeeded", "job_id", job.ID, "op", job.Op, "booking_id", job.BookingID)
		return
	}
	if errors.Is(err, ErrProviderDeclined) {
		w.logger.Warn("provider job declined", "job_id", job.ID, "op", job.Op, "error", err)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= w.policy.QueueMaxAttempts {
		w.park(ctx, job)
		return
	}
	job.NotBefore = w.now().Add(w.policy.QueueBackoff << min(job.Attempts, 10))
	if err := w.queue.Enqueue(ctx, job); err != nil {
		w.logger.Error("failed to requeue provider job", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Warn("provider job failed, requeued",
		"job_id", job.ID,
		"op", job.Op,
		"attempts", job.Attempts,
		"not_before", job.NotBefore,
		"error", err,
	)
}

// execute performs the job's call and applies a definite outcome.
func (w *RetryWorker) execute(ctx context.Context, job *domain.ProviderJob) error {
	switch job.Op {
	case domain.ProviderAuthorize:
		holdID, err := w.provider.Authorize(ctx, AuthorizeRequest{
			BookingID:   job.BookingID,
			UserID:      job.UserID,
			AmountCents: job.AmountCents,
			Currency:    job.Currency,
		})
		if errors.Is(err, ErrProviderDeclined) {
			if _, ferr := w.bookings.failPayment(ctx, job.BookingID, err.Error()); ferr != nil {
				return ferr
			}
			return err
		}
		if err != nil {
			return err
		}
		_, err = w.bookings.CompletePaymentAuthorization(ctx, job.BookingID, holdID)
		if errors.Is(err, ErrInvalidTransition) {
			return nil
		}
		return err

	case domain.ProviderCapture:
		return w.provider.Capture(ctx, job.HoldID, job.AmountCents)

	case domain.ProviderVoid:
		return w.provider.Void(ctx, job.HoldID)

	case domain.ProviderPayout:
		_, err := w.provider.Payout(ctx, PayoutRequest{
			UserID:      job.UserID,
			AmountCents: job.AmountCents,
			Currency:    job.Currency,
			Reference:   job.Reference,
		})
		if errors.Is(err, ErrProviderDeclined) {
			if _, serr := w.ledger.SettleWithdrawal(ctx, job.Reference, false); serr != nil {
				return serr
			}
			return err
		}
		if err != nil {
			return err
		}
		_, err = w.ledger.SettleWithdrawal(ctx, job.Reference, true)
		return err
	}
	return fmt.Errorf("unknown provider op %q", job.Op)
}

func (w *RetryWorker) park(ctx context.Context, job *domain.ProviderJob) {
	if err := w.queue.ManualReview(ctx, job); err != nil {
		w.logger.Error("failed to park provider job", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Error("provider job needs manual review",
		"job_id", job.ID,
		"op", job.Op,
		"booking_id", job.BookingID,
		"attempts", job.Attempts,
		"error", job.LastError,
	)
	notify(ctx, w.notifier, w.logger, domain.Event{
		Type:      domain.EventProviderManualReview,
		BookingID: job.BookingID,
		UserID:    job.UserID,
		Data: map[string]string{
			"job_id":     job.ID,
			"op":         string(job.Op),
			"last_error": job.LastError,
		},
		OccurredAt: w.now(),
	})
}
