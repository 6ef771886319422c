package repository

import (
	"context"

	"autorent/internal/domain"
)

// WalletRepository defines the persistence operations for the wallet ledger.
type WalletRepository interface {
	// CreateAccount persists a new wallet account.
	CreateAccount(ctx context.Context, account *domain.WalletAccount) error

	// GetAccount retrieves a wallet account by user ID.
	GetAccount(ctx context.Context, userID string) (*domain.WalletAccount, error)

	// GetAccountForUpdate retrieves a wallet account and locks it until the
	// surrounding transaction ends.
	GetAccountForUpdate(ctx context.Context, userID string) (*domain.WalletAccount, error)

	// UpdateAccount writes the cached balances and frozen flag.
	UpdateAccount(ctx context.Context, account *domain.WalletAccount) error

	// CreateTransaction appends a ledger entry.
	// Returns ErrDuplicate if the idempotency key is already used.
	CreateTransaction(ctx context.Context, tx *domain.WalletTransaction) error

	// GetTransaction retrieves a ledger entry by ID.
	GetTransaction(ctx context.Context, id string) (*domain.WalletTransaction, error)

	// GetTransactionByIdempotencyKey retrieves a ledger entry by its idempotency key.
	// Returns nil if no entry exists with the given key.
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.WalletTransaction, error)

	// UpdateTransactionStatus moves a pending entry to its final status.
	UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error

	// ListTransactions returns a user's ledger entries, oldest first.
	ListTransactions(ctx context.Context, userID string) ([]*domain.WalletTransaction, error)

	// SumCompleted rebuilds the total and locked balances from completed entries.
	SumCompleted(ctx context.Context, userID string) (balance, locked int64, err error)

	// CreateLock persists a new wallet lock.
	CreateLock(ctx context.Context, lock *domain.WalletLock) error

	// GetLock retrieves the lock a user holds against a reference.
	GetLock(ctx context.Context, userID, reference string) (*domain.WalletLock, error)

	// GetLockByReference retrieves the lock held against a reference by any user.
	GetLockByReference(ctx context.Context, reference string) (*domain.WalletLock, error)

	// UpdateLock writes the remaining amount and status of a lock.
	UpdateLock(ctx context.Context, lock *domain.WalletLock) error
}
