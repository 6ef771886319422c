package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
type WalletRepository struct {
	q Querier
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{q: db}
}

// NewWalletRepositoryWithTx creates a wallet repository using a transaction.
func NewWalletRepositoryWithTx(tx *sqlx.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

type accountRow struct {
	UserID       string    `db:"user_id"`
	Currency     string    `db:"currency"`
	BalanceCents int64     `db:"balance_cents"`
	LockedCents  int64     `db:"locked_balance_cents"`
	Frozen       bool      `db:"frozen"`
	FrozenReason string    `db:"frozen_reason"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() *domain.WalletAccount {
	return &domain.WalletAccount{
		UserID:       r.UserID,
		Currency:     r.Currency,
		BalanceCents: r.BalanceCents,
		LockedCents:  r.LockedCents,
		Frozen:       r.Frozen,
		FrozenReason: r.FrozenReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const accountColumns = `user_id, currency, balance_cents, locked_balance_cents, frozen, frozen_reason, created_at, updated_at`

// CreateAccount persists a new wallet account.
func (r *WalletRepository) CreateAccount(ctx context.Context, a *domain.WalletAccount) error {
	query := `INSERT INTO wallet_accounts (` + accountColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.ExecContext(ctx, query,
		a.UserID, a.Currency, a.BalanceCents, a.LockedCents, a.Frozen, a.FrozenReason, a.CreatedAt, a.UpdatedAt,
	)
	return mapError(err)
}

// GetAccount retrieves a wallet account by user ID.
func (r *WalletRepository) GetAccount(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	var row accountRow
	err := r.q.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM wallet_accounts WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetAccountForUpdate retrieves a wallet account with a row lock held
// until the surrounding transaction ends.
func (r *WalletRepository) GetAccountForUpdate(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	var row accountRow
	err := r.q.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// UpdateAccount writes the cached balances and frozen flag.
func (r *WalletRepository) UpdateAccount(ctx context.Context, a *domain.WalletAccount) error {
	query := `
		UPDATE wallet_accounts
		SET balance_cents = $1, locked_balance_cents = $2, frozen = $3, frozen_reason = $4, updated_at = $5
		WHERE user_id = $6
	`

	result, err := r.q.ExecContext(ctx, query, a.BalanceCents, a.LockedCents, a.Frozen, a.FrozenReason, a.UpdatedAt, a.UserID)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(result)
}

type transactionRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Type           string    `db:"type"`
	AmountCents    int64     `db:"amount_cents"`
	Currency       string    `db:"currency"`
	Status         string    `db:"status"`
	Reference      string    `db:"reference"`
	Description    string    `db:"description"`
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r transactionRow) toDomain() *domain.WalletTransaction {
	return &domain.WalletTransaction{
		ID:             r.ID,
		UserID:         r.UserID,
		Type:           domain.TransactionType(r.Type),
		AmountCents:    r.AmountCents,
		Currency:       r.Currency,
		Status:         domain.TransactionStatus(r.Status),
		Reference:      r.Reference,
		Description:    r.Description,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
	}
}

const transactionColumns = `id, user_id, type, amount_cents, currency, status, reference, description, COALESCE(idempotency_key, '') AS idempotency_key, created_at`

// CreateTransaction appends a ledger entry. An empty idempotency key is stored as NULL.
func (r *WalletRepository) CreateTransaction(ctx context.Context, t *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions
			(id, user_id, type, amount_cents, currency, status, reference, description, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Type,
		t.AmountCents,
		t.Currency,
		t.Status,
		t.Reference,
		t.Description,
		t.IdempotencyKey,
		t.CreatedAt,
	)
	return mapError(err)
}

// GetTransaction retrieves a ledger entry by ID.
func (r *WalletRepository) GetTransaction(ctx context.Context, id string) (*domain.WalletTransaction, error) {
	var row transactionRow
	if err := r.q.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetTransactionByIdempotencyKey returns nil if no entry uses the key.
func (r *WalletRepository) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error) {
	var row transactionRow
	err := r.q.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE idempotency_key = $1`, key)
	if err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// UpdateTransactionStatus moves a pending entry to its final status.
func (r *WalletRepository) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	result, err := r.q.ExecContext(ctx, `UPDATE wallet_transactions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(result)
}

// ListTransactions returns a user's ledger entries, oldest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string) ([]*domain.WalletTransaction, error) {
	var rows []transactionRow
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domain.WalletTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// SumCompleted rebuilds the total and locked balances from completed entries.
func (r *WalletRepository) SumCompleted(ctx context.Context, userID string) (int64, int64, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE
				WHEN type IN ('deposit', 'refund', 'transfer_in') THEN amount_cents
				WHEN type IN ('withdrawal', 'charge', 'transfer_out') THEN -amount_cents
				ELSE 0 END), 0) AS balance,
			COALESCE(SUM(CASE
				WHEN type = 'lock' THEN amount_cents
				WHEN type = 'unlock' THEN -amount_cents
				ELSE 0 END), 0) AS locked
		FROM wallet_transactions
		WHERE user_id = $1 AND status = 'completed'
	`

	var sums struct {
		Balance int64 `db:"balance"`
		Locked  int64 `db:"locked"`
	}
	if err := r.q.GetContext(ctx, &sums, query, userID); err != nil {
		return 0, 0, mapError(err)
	}
	return sums.Balance, sums.Locked, nil
}

type lockRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Reference      string    `db:"reference"`
	AmountCents    int64     `db:"amount_cents"`
	RemainingCents int64     `db:"remaining_cents"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r lockRow) toDomain() *domain.WalletLock {
	return &domain.WalletLock{
		ID:             r.ID,
		UserID:         r.UserID,
		Reference:      r.Reference,
		AmountCents:    r.AmountCents,
		RemainingCents: r.RemainingCents,
		Status:         domain.LockStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const lockColumns = `id, user_id, reference, amount_cents, remaining_cents, status, created_at, updated_at`

// CreateLock persists a new wallet lock.
func (r *WalletRepository) CreateLock(ctx context.Context, l *domain.WalletLock) error {
	query := `INSERT INTO wallet_locks (` + lockColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.ExecContext(ctx, query,
		l.ID, l.UserID, l.Reference, l.AmountCents, l.RemainingCents, l.Status, l.CreatedAt, l.UpdatedAt,
	)
	return mapError(err)
}

// GetLock retrieves the lock a user holds against a reference.
func (r *WalletRepository) GetLock(ctx context.Context, userID, reference string) (*domain.WalletLock, error) {
	var row lockRow
	query := `SELECT ` + lockColumns + ` FROM wallet_locks WHERE user_id = $1 AND reference = $2`
	if err := r.q.GetContext(ctx, &row, query, userID, reference); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetLockByReference retrieves the lock held against a reference by any user.
func (r *WalletRepository) GetLockByReference(ctx context.Context, reference string) (*domain.WalletLock, error) {
	var row lockRow
	query := `SELECT ` + lockColumns + ` FROM wallet_locks WHERE reference = $1 ORDER BY created_at LIMIT 1`
	if err := r.q.GetContext(ctx, &row, query, reference); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// UpdateLock writes the remaining amount and status of a lock.
func (r *WalletRepository) UpdateLock(ctx context.Context, l *domain.WalletLock) error {
	query := `UPDATE wallet_locks SET remaining_cents = $1, status = $2, updated_at = $3 WHERE id = $4`

	result, err := r.q.ExecContext(ctx, query, l.RemainingCents, l.Status, l.UpdatedAt, l.ID)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(result)
}
