package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/metrics"
	"autorent/internal/repository"
)

// Ledger is the wallet service. Balances only change through completed
// ledger entries written here.
type Ledger struct {
	store    repository.Store
	tx       *txRunner
	provider *ProviderClient
	queue    RetryQueue
	policy   config.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedger creates a new Ledger.
func NewLedger(
	store repository.Store,
	provider *ProviderClient,
	queue RetryQueue,
	policy config.Policy,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		store:    store,
		tx:       newTxRunner(store, policy.Retry, logger),
		provider: provider,
		queue:    queue,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Payee receives part of a charge as a transfer_in.
type Payee struct {
	UserID      string
	AmountCents int64
}

// LockRequest contains the parameters for locking funds.
type LockRequest struct {
	UserID         string
	AmountCents    int64
	Currency       string
	Reference      string
	IdempotencyKey string
}

// ChargeRequest contains the parameters for charging a wallet.
type ChargeRequest struct {
	UserID      string
	AmountCents int64
	Reference   string
	Description string
	Payees      []Payee
}

// ChargeResult reports a charge against a lock.
type ChargeResult struct {
	ChargedCents   int64
	RemainingCents int64
}

// DepositRequest contains the parameters for an externally funded deposit.
type DepositRequest struct {
	UserID         string
	AmountCents    int64
	Currency       string
	Reference      string
	IdempotencyKey string
}

// WithdrawRequest contains the parameters for a payout to the user.
type WithdrawRequest struct {
	UserID         string
	AmountCents    int64
	IdempotencyKey string
}

// RefundRequest moves money from one wallet back to another.
type RefundRequest struct {
	FromUserID  string
	ToUserID    string
	AmountCents int64
	Reference   string
	Description string
}

// ReconcileReport compares an account's cached balances with its ledger.
type ReconcileReport struct {
	UserID        string
	CachedBalance int64
	CachedLocked  int64
	LedgerBalance int64
	LedgerLocked  int64
	Consistent    bool
}

// ──────────────────────────────────────────────
// PUBLIC OPERATIONS
// ──────────────────────────────────────────────

// Lock moves funds from available to locked against a reference. A retry
// with the same user and reference returns the original entry.
func (l *Ledger) Lock(ctx context.Context, req LockRequest) (*domain.WalletTransaction, error) {
	if req.UserID == "" || req.Reference == "" {
		return nil, ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *domain.WalletTransaction
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		entry, err = l.lockTx(ctx, tx, req)
		return err
	})
	return entry, err
}

// Unlock releases what remains of a lock. Unlocking twice is a no-op.
// Locks of a live booking or a pending withdrawal are released by their
// own transitions and fail with ErrLockInUse here.
func (l *Ledger) Unlock(ctx context.Context, userID, reference string) (int64, error) {
	if userID == "" || reference == "" {
		return 0, ErrInvalidID
	}
	var released int64
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		if err := l.checkDirectUnlockTx(ctx, tx, reference); err != nil {
			return err
		}
		var err error
		released, err = l.unlockTx(ctx, tx, userID, reference)
		return err
	})
	return released, err
}

// UnlockByReference releases the lock held against a reference by any user.
func (l *Ledger) UnlockByReference(ctx context.Context, reference string) (int64, error) {
	if reference == "" {
		return 0, ErrInvalidID
	}
	var released int64
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		if err := l.checkDirectUnlockTx(ctx, tx, reference); err != nil {
			return err
		}
		lock, err := tx.Wallets().GetLockByReference(ctx, reference)
		if err != nil {
			return notFound(err, ErrLockNotFound)
		}
		released, err = l.unlockTx(ctx, tx, lock.UserID, reference)
		return err
	})
	return released, err
}

// ChargeFromLocked converts up to the locked amount into a charge and
// credits the payees. Anything beyond the lock is left to the caller.
func (l *Ledger) ChargeFromLocked(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.UserID == "" || req.Reference == "" {
		return nil, ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var result *ChargeResult
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		result, err = l.chargeFromLockedTx(ctx, tx, req)
		return err
	})
	return result, err
}

// Charge debits the available balance in full or fails with ErrInsufficientFunds.
func (l *Ledger) Charge(ctx context.Context, req ChargeRequest) (*domain.WalletTransaction, error) {
	if req.UserID == "" {
		return nil, ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var entry *domain.WalletTransaction
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		account, err := l.account(ctx, tx, req.UserID, "", false)
		if err != nil {
			return err
		}
		if account.AvailableCents() < req.AmountCents {
			return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, account.AvailableCents(), req.AmountCents)
		}
		entry, err = l.post(ctx, tx, account, domain.TransactionCharge, req.AmountCents, req.Reference, req.Description, "")
		if err != nil {
			return err
		}
		return l.pay(ctx, tx, account.Currency, req.AmountCents, req.Payees, req.Reference, req.Description)
	})
	return entry, err
}

// Deposit credits an externally funded amount. Replaying the same
// idempotency key returns the original entry without a second credit.
func (l *Ledger) Deposit(ctx context.Context, req DepositRequest) (*domain.WalletTransaction, error) {
	if req.UserID == "" {
		return nil, ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	var entry *domain.WalletTransaction
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		existing, err := tx.Wallets().GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}
		account, err := l.account(ctx, tx, req.UserID, req.Currency, true)
		if err != nil {
			return err
		}
		entry, err = l.post(ctx, tx, account, domain.TransactionDeposit, req.AmountCents, req.Reference, "wallet deposit", req.IdempotencyKey)
		return err
	})
	return entry, err
}

// Withdraw locks the amount, asks the provider for a payout outside the
// lock and settles the pending entry with the outcome.
func (l *Ledger) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.WalletTransaction, error) {
	if req.UserID == "" {
		return nil, ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	var entry *domain.WalletTransaction
	var replay bool
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		existing, err := tx.Wallets().GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			entry, replay = existing, true
			return nil
		}
		account, err := l.account(ctx, tx, req.UserID, "", false)
		if err != nil {
			return err
		}
		if account.AvailableCents() < req.AmountCents {
			return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, account.AvailableCents(), req.AmountCents)
		}

		entry = &domain.WalletTransaction{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			Type:           domain.TransactionWithdrawal,
			AmountCents:    req.AmountCents,
			Currency:       account.Currency,
			Status:         domain.TransactionPending,
			Description:    "wallet withdrawal",
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      l.now(),
		}
		entry.Reference = withdrawalRef(entry.ID)

		if _, err := l.lockTx(ctx, tx, LockRequest{
			UserID:      req.UserID,
			AmountCents: req.AmountCents,
			Currency:    account.Currency,
			Reference:   entry.Reference,
		}); err != nil {
			return err
		}
		return tx.Wallets().CreateTransaction(ctx, entry)
	})
	if err != nil || replay {
		return entry, err
	}

	_, perr := l.provider.Payout(ctx, PayoutRequest{
		UserID:      entry.UserID,
		AmountCents: entry.AmountCents,
		Currency:    entry.Currency,
		Reference:   entry.ID,
	})
	switch {
	case perr == nil:
		return l.SettleWithdrawal(ctx, entry.ID, true)
	case errors.Is(perr, ErrProviderDeclined):
		settled, err := l.SettleWithdrawal(ctx, entry.ID, false)
		if err != nil {
			return nil, err
		}
		return settled, perr
	default:
		job := &domain.ProviderJob{
			ID:          uuid.New().String(),
			Op:          domain.ProviderPayout,
			UserID:      entry.UserID,
			AmountCents: entry.AmountCents,
			Currency:    entry.Currency,
			Reference:   entry.ID,
			NotBefore:   l.now().Add(l.policy.Retry.QueueBackoff),
			LastError:   perr.Error(),
			CreatedAt:   l.now(),
		}
		if err := l.queue.Enqueue(ctx, job); err != nil {
			return nil, fmt.Errorf("enqueue payout retry: %w", err)
		}
		l.logger.Warn("payout queued for retry", "transaction_id", entry.ID, "user_id", entry.UserID)
		return entry, nil
	}
}

// SettleWithdrawal completes or fails a pending withdrawal. Settling an
// already settled withdrawal returns it unchanged.
func (l *Ledger) SettleWithdrawal(ctx context.Context, transactionID string, paid bool) (*domain.WalletTransaction, error) {
	var entry *domain.WalletTransaction
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		entry, err = tx.Wallets().GetTransaction(ctx, transactionID)
		if err != nil {
			return notFound(err, ErrInvalidID)
		}
		if entry.Status != domain.TransactionPending {
			return nil
		}
		if _, err := l.unlockTx(ctx, tx, entry.UserID, entry.Reference); err != nil {
			return err
		}
		if !paid {
			entry.Status = domain.TransactionFailed
			return tx.Wallets().UpdateTransactionStatus(ctx, entry.ID, entry.Status)
		}

		account, err := l.account(ctx, tx, entry.UserID, "", false)
		if err != nil {
			return err
		}
		if err := l.apply(account, entry.Type, entry.AmountCents); err != nil {
			return err
		}
		account.UpdatedAt = l.now()
		entry.Status = domain.TransactionCompleted
		if err := tx.Wallets().UpdateTransactionStatus(ctx, entry.ID, entry.Status); err != nil {
			return err
		}
		metrics.RecordLedgerEntry(string(entry.Type), entry.AmountCents)
		return tx.Wallets().UpdateAccount(ctx, account)
	})
	return entry, err
}

// Refund moves money from one wallet to another as a transfer_out and refund pair.
func (l *Ledger) Refund(ctx context.Context, req RefundRequest) error {
	if req.FromUserID == "" || req.ToUserID == "" {
		return ErrInvalidID
	}
	if req.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	return l.tx.run(ctx, func(tx repository.Repos) error {
		from, err := l.account(ctx, tx, req.FromUserID, "", false)
		if err != nil {
			return err
		}
		if from.AvailableCents() < req.AmountCents {
			return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, from.AvailableCents(), req.AmountCents)
		}
		if _, err := l.post(ctx, tx, from, domain.TransactionTransferOut, req.AmountCents, req.Reference, req.Description, ""); err != nil {
			return err
		}
		_, err = l.creditTx(ctx, tx, req.ToUserID, from.Currency, req.AmountCents, domain.TransactionRefund, req.Reference, req.Description)
		return err
	})
}

// Balance returns a user's account.
func (l *Ledger) Balance(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	account, err := l.store.Wallets().GetAccount(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrAccountNotFound)
	}
	return account, nil
}

// Transactions returns a user's ledger, oldest first.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]*domain.WalletTransaction, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	return l.store.Wallets().ListTransactions(ctx, userID)
}

// Reconcile rebuilds balances from the ledger. A mismatch freezes the
// account and returns ErrIntegrityViolation along with the report.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*ReconcileReport, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	var report *ReconcileReport
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		account, err := tx.Wallets().GetAccountForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		report, err = l.compare(ctx, tx, account)
		if err != nil {
			return err
		}
		if !report.Consistent {
			return &integrityError{userID: userID, reason: "ledger sum does not match cached balances"}
		}
		return nil
	})
	return report, err
}

// Unfreeze rebuilds the cached balances from the ledger and lifts a freeze.
// It is an operator action.
func (l *Ledger) Unfreeze(ctx context.Context, userID, operatorID string) (*domain.WalletAccount, error) {
	if operatorID == "" {
		return nil, ErrOperatorRequired
	}
	var account *domain.WalletAccount
	err := l.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		account, err = tx.Wallets().GetAccountForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		balance, locked, err := tx.Wallets().SumCompleted(ctx, userID)
		if err != nil {
			return err
		}
		if locked < 0 || balance-locked < 0 {
			return fmt.Errorf("%w: ledger itself is negative", ErrIntegrityViolation)
		}
		account.BalanceCents = balance
		account.LockedCents = locked
		account.Frozen = false
		account.FrozenReason = ""
		account.UpdatedAt = l.now()
		return tx.Wallets().UpdateAccount(ctx, account)
	})
	if err == nil {
		l.logger.Info("wallet account unfrozen", "user_id", userID, "operator_id", operatorID)
	}
	return account, err
}

// ──────────────────────────────────────────────
// UNIT-OF-WORK OPERATIONS
// ──────────────────────────────────────────────

func (l *Ledger) lockTx(ctx context.Context, tx repository.Repos, req LockRequest) (*domain.WalletTransaction, error) {
	if req.IdempotencyKey != "" {
		existing, err := tx.Wallets().GetTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	account, err := l.account(ctx, tx, req.UserID, req.Currency, true)
	if err != nil {
		return nil, err
	}

	lock, err := tx.Wallets().GetLock(ctx, req.UserID, req.Reference)
	switch {
	case err == nil:
		return tx.Wallets().GetTransaction(ctx, lock.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if account.AvailableCents() < req.AmountCents {
		return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, account.AvailableCents(), req.AmountCents)
	}

	entry, err := l.post(ctx, tx, account, domain.TransactionLock, req.AmountCents, req.Reference, "funds locked", req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	now := l.now()
	err = tx.Wallets().CreateLock(ctx, &domain.WalletLock{
		ID:             entry.ID,
		UserID:         req.UserID,
		Reference:      req.Reference,
		AmountCents:    req.AmountCents,
		RemainingCents: req.AmountCents,
		Status:         domain.LockActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, repository.ErrConflict
	}
	return entry, err
}

func (l *Ledger) unlockTx(ctx context.Context, tx repository.Repos, userID, reference string) (int64, error) {
	lock, err := tx.Wallets().GetLock(ctx, userID, reference)
	if err != nil {
		return 0, notFound(err, ErrLockNotFound)
	}
	if lock.Status != domain.LockActive {
		return 0, nil
	}

	released := lock.RemainingCents
	if released > 0 {
		account, err := l.account(ctx, tx, userID, "", false)
		if err != nil {
			return 0, err
		}
		if _, err := l.post(ctx, tx, account, domain.TransactionUnlock, released, reference, "funds released", ""); err != nil {
			return 0, err
		}
	}

	lock.RemainingCents = 0
	lock.Status = domain.LockReleased
	lock.UpdatedAt = l.now()
	return released, tx.Wallets().UpdateLock(ctx, lock)
}

func (l *Ledger) chargeFromLockedTx(ctx context.Context, tx repository.Repos, req ChargeRequest) (*ChargeResult, error) {
	lock, err := tx.Wallets().GetLock(ctx, req.UserID, req.Reference)
	if err != nil {
		return nil, notFound(err, ErrLockNotFound)
	}
	if lock.Status != domain.LockActive {
		return &ChargeResult{}, nil
	}

	amount := min(req.AmountCents, lock.RemainingCents)
	if amount <= 0 {
		return &ChargeResult{RemainingCents: lock.RemainingCents}, nil
	}

	account, err := l.account(ctx, tx, req.UserID, "", false)
	if err != nil {
		return nil, err
	}
	if _, err := l.post(ctx, tx, account, domain.TransactionUnlock, amount, req.Reference, "consumed by charge", ""); err != nil {
		return nil, err
	}
	if _, err := l.post(ctx, tx, account, domain.TransactionCharge, amount, req.Reference, req.Description, ""); err != nil {
		return nil, err
	}

	lock.RemainingCents -= amount
	if lock.RemainingCents == 0 {
		lock.Status = domain.LockConsumed
	}
	lock.UpdatedAt = l.now()
	if err := tx.Wallets().UpdateLock(ctx, lock); err != nil {
		return nil, err
	}

	if err := l.pay(ctx, tx, account.Currency, amount, req.Payees, req.Reference, req.Description); err != nil {
		return nil, err
	}
	return &ChargeResult{ChargedCents: amount, RemainingCents: lock.RemainingCents}, nil
}

// chargeAvailableTx charges up to max from the unlocked balance.
func (l *Ledger) chargeAvailableTx(ctx context.Context, tx repository.Repos, req ChargeRequest) (int64, error) {
	account, err := l.account(ctx, tx, req.UserID, "", false)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	amount := min(req.AmountCents, account.AvailableCents())
	if amount <= 0 {
		return 0, nil
	}
	if _, err := l.post(ctx, tx, account, domain.TransactionCharge, amount, req.Reference, req.Description, ""); err != nil {
		return 0, err
	}
	return amount, l.pay(ctx, tx, account.Currency, amount, req.Payees, req.Reference, req.Description)
}

// creditTx adds money to a wallet, creating the account on first credit.
func (l *Ledger) creditTx(
	ctx context.Context,
	tx repository.Repos,
	userID, currency string,
	amount int64,
	t domain.TransactionType,
	reference, description string,
) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, nil
	}
	account, err := l.account(ctx, tx, userID, currency, true)
	if err != nil {
		return nil, err
	}
	return l.post(ctx, tx, account, t, amount, reference, description, "")
}

// pay distributes up to amount across the payees in order.
func (l *Ledger) pay(ctx context.Context, tx repository.Repos, currency string, amount int64, payees []Payee, reference, description string) error {
	left := amount
	for _, p := range payees {
		n := min(p.AmountCents, left)
		if n <= 0 || p.UserID == "" {
			continue
		}
		if _, err := l.creditTx(ctx, tx, p.UserID, currency, n, domain.TransactionTransferIn, reference, description); err != nil {
			return err
		}
		left -= n
	}
	return nil
}

// account loads and locks a wallet, optionally creating it.
func (l *Ledger) account(ctx context.Context, tx repository.Repos, userID, currency string, create bool) (*domain.WalletAccount, error) {
	account, err := tx.Wallets().GetAccountForUpdate(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		if !create {
			return nil, ErrAccountNotFound
		}
		if currency == "" {
			return nil, fmt.Errorf("%w: currency required to open account", ErrCurrencyMismatch)
		}
		now := l.now()
		account = &domain.WalletAccount{UserID: userID, Currency: currency, CreatedAt: now, UpdatedAt: now}
		if err := tx.Wallets().CreateAccount(ctx, account); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, repository.ErrConflict
			}
			return nil, err
		}
		return account, nil
	}
	if err != nil {
		return nil, err
	}
	if account.Frozen {
		return nil, fmt.Errorf("%w: %s", ErrAccountFrozen, account.FrozenReason)
	}
	if currency != "" && account.Currency != currency {
		return nil, fmt.Errorf("%w: wallet %s, amount %s", ErrCurrencyMismatch, account.Currency, currency)
	}
	return account, nil
}

// post appends a completed entry and updates the cached balances.
func (l *Ledger) post(
	ctx context.Context,
	tx repository.Repos,
	account *domain.WalletAccount,
	t domain.TransactionType,
	amount int64,
	reference, description, idempotencyKey string,
) (*domain.WalletTransaction, error) {
	if err := l.apply(account, t, amount); err != nil {
		return nil, err
	}
	now := l.now()
	account.UpdatedAt = now

	entry := &domain.WalletTransaction{
		ID:             uuid.New().String(),
		UserID:         account.UserID,
		Type:           t,
		AmountCents:    amount,
		Currency:       account.Currency,
		Status:         domain.TransactionCompleted,
		Reference:      reference,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}
	if err := tx.Wallets().CreateTransaction(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// A concurrent request used the same key; the retry replays it.
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	if err := tx.Wallets().UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	metrics.RecordLedgerEntry(string(t), amount)
	return entry, nil
}

// apply changes the cached balances and refuses any negative result.
func (l *Ledger) apply(account *domain.WalletAccount, t domain.TransactionType, amount int64) error {
	balance, locked := t.BalanceEffect(amount)
	account.BalanceCents += balance
	account.LockedCents += locked
	if account.LockedCents < 0 || account.AvailableCents() < 0 {
		return &integrityError{
			userID: account.UserID,
			reason: fmt.Sprintf("%s of %d left balance %d locked %d", t, amount, account.BalanceCents, account.LockedCents),
		}
	}
	return nil
}

func (l *Ledger) compare(ctx context.Context, tx repository.Repos, account *domain.WalletAccount) (*ReconcileReport, error) {
	balance, locked, err := tx.Wallets().SumCompleted(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	return &ReconcileReport{
		UserID:        account.UserID,
		CachedBalance: account.BalanceCents,
		CachedLocked:  account.LockedCents,
		LedgerBalance: balance,
		LedgerLocked:  locked,
		Consistent:    balance == account.BalanceCents && locked == account.LockedCents,
	}, nil
}

func withdrawalRef(transactionID string) string {
	return withdrawalPrefix + transactionID
}

const withdrawalPrefix = "withdrawal:"

// checkDirectUnlockTx refuses references whose funds a booking or a
// withdrawal still accounts for.
func (l *Ledger) checkDirectUnlockTx(ctx context.Context, tx repository.Repos, reference string) error {
	if bookingID, ok := domain.BookingIDFromLockRef(reference); ok {
		b, err := tx.Bookings().GetByID(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !b.Status.IsTerminal() {
			return fmt.Errorf("%w: booking %s is %s", ErrLockInUse, b.ID, b.Status)
		}
		return nil
	}
	if txnID, ok := strings.CutPrefix(reference, withdrawalPrefix); ok {
		entry, err := tx.Wallets().GetTransaction(ctx, txnID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Status == domain.TransactionPending {
			return fmt.Errorf("%w: withdrawal %s is pending", ErrLockInUse, txnID)
		}
	}
	return nil
}
