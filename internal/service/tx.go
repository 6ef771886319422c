package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"autorent/internal/config"
	"autorent/internal/metrics"
	"autorent/internal/repository"
)

// integrityError marks a unit of work aborted because an account's derived
// balances went negative. The runner freezes the account after rollback.
type integrityError struct {
	userID string
	reason string
}

func (e *integrityError) Error() string {
	return fmt.Sprintf("%s: account %s: %s", ErrIntegrityViolation, e.userID, e.reason)
}

func (e *integrityError) Unwrap() error { return ErrIntegrityViolation }

// txRunner runs units of work, retrying the ones that lost a race.
type txRunner struct {
	store  repository.Store
	policy config.RetryPolicy
	logger *slog.Logger
}

func newTxRunner(store repository.Store, policy config.RetryPolicy, logger *slog.Logger) *txRunner {
	return &txRunner{store: store, policy: policy, logger: logger}
}

// run executes fn in a transaction. fn must load everything it mutates so a
// retry starts from fresh state.
func (r *txRunner) run(ctx context.Context, fn func(tx repository.Repos) error) error {
	attempts := r.policy.ConflictAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.ConflictBackoff
	b.MaxElapsedTime = 0

	var attempt int
	op := func() error {
		attempt++
		err := r.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrConflict) && attempt < attempts {
			metrics.RecordConflictRetry()
			r.logger.Debug("unit of work conflicted, retrying", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	if err == nil {
		return nil
	}

	var ie *integrityError
	if errors.As(err, &ie) {
		r.freeze(ctx, ie.userID, ie.reason)
		return err
	}
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}

// freeze marks an account frozen in its own transaction, since the unit of
// work that detected the violation was rolled back.
func (r *txRunner) freeze(ctx context.Context, userID, reason string) {
	err := r.store.WithTx(ctx, func(tx repository.Repos) error {
		account, err := tx.Wallets().GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		account.Frozen = true
		account.FrozenReason = reason
		account.UpdatedAt = time.Now().UTC()
		return tx.Wallets().UpdateAccount(ctx, account)
	})
	if err != nil {
		r.logger.Error("failed to freeze account", "user_id", userID, "error", err)
		return
	}
	metrics.RecordIntegrityViolation()
	r.logger.Error("wallet account frozen", "user_id", userID, "reason", reason)
}

// notFound translates a repository miss into the given service error.
func notFound(err error, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
