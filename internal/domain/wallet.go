package domain

import "time"

// TransactionType is the kind of a ledger entry.
type TransactionType string

const (
	TransactionDeposit     TransactionType = "deposit"
	TransactionWithdrawal  TransactionType = "withdrawal"
	TransactionCharge      TransactionType = "charge"
	TransactionRefund      TransactionType = "refund"
	TransactionLock        TransactionType = "lock"
	TransactionUnlock      TransactionType = "unlock"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
)

// BalanceEffect returns the signed effect of a completed entry on the
// total balance and on the locked balance.
func (t TransactionType) BalanceEffect(amount int64) (balance, locked int64) {
	switch t {
	case TransactionDeposit, TransactionRefund, TransactionTransferIn:
		return amount, 0
	case TransactionWithdrawal, TransactionCharge, TransactionTransferOut:
		return -amount, 0
	case TransactionLock:
		return 0, amount
	case TransactionUnlock:
		return 0, -amount
	}
	return 0, 0
}

// TransactionStatus is the lifecycle status of a ledger entry.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// WalletAccount is the cached balance of one user. The ledger is the
// source of truth.
type WalletAccount struct {
	UserID       string
	Currency     string
	BalanceCents int64
	LockedCents  int64
	Frozen       bool
	FrozenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AvailableCents is the balance not committed to a lock.
func (a *WalletAccount) AvailableCents() int64 {
	return a.BalanceCents - a.LockedCents
}

// WalletTransaction is one immutable ledger entry.
type WalletTransaction struct {
	ID             string
	UserID         string
	Type           TransactionType
	AmountCents    int64
	Currency       string
	Status         TransactionStatus
	Reference      string
	Description    string
	IdempotencyKey string
	CreatedAt      time.Time
}

// LockStatus tracks a wallet lock.
type LockStatus string

const (
	LockActive   LockStatus = "active"
	LockReleased LockStatus = "released"
	LockConsumed LockStatus = "consumed"
)

// WalletLock is funds committed against a reference (a booking or a
// pending withdrawal).
type WalletLock struct {
	ID             string
	UserID         string
	Reference      string
	AmountCents    int64
	RemainingCents int64
	Status         LockStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
