package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"autorent/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Bookings() repository.BookingRepository { return NewBookingRepository(s.db) }
func (s *Store) Cars() repository.CarRepository         { return NewCarRepository(s.db) }
func (s *Store) Owners() repository.OwnerRepository     { return NewOwnerRepository(s.db) }
func (s *Store) Wallets() repository.WalletRepository   { return NewWalletRepository(s.db) }
func (s *Store) Funds() repository.FundRepository       { return NewFundRepository(s.db) }
func (s *Store) Risk() repository.RiskRepository        { return NewRiskRepository(s.db) }
func (s *Store) Claims() repository.ClaimRepository     { return NewClaimRepository(s.db) }

// WithTx runs fn with transaction-scoped repositories.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txRepos{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// txRepos builds repositories bound to one transaction.
type txRepos struct {
	tx *sqlx.Tx
}

func (t *txRepos) Bookings() repository.BookingRepository { return NewBookingRepositoryWithTx(t.tx) }
func (t *txRepos) Cars() repository.CarRepository         { return NewCarRepositoryWithTx(t.tx) }
func (t *txRepos) Owners() repository.OwnerRepository     { return NewOwnerRepositoryWithTx(t.tx) }
func (t *txRepos) Wallets() repository.WalletRepository   { return NewWalletRepositoryWithTx(t.tx) }
func (t *txRepos) Funds() repository.FundRepository       { return NewFundRepositoryWithTx(t.tx) }
func (t *txRepos) Risk() repository.RiskRepository        { return NewRiskRepositoryWithTx(t.tx) }
func (t *txRepos) Claims() repository.ClaimRepository     { return NewClaimRepositoryWithTx(t.tx) }

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Repos = (*txRepos)(nil)

	_ repository.BookingRepository = (*BookingRepository)(nil)
	_ repository.CarRepository     = (*CarRepository)(nil)
	_ repository.OwnerRepository   = (*OwnerRepository)(nil)
	_ repository.WalletRepository  = (*WalletRepository)(nil)
	_ repository.FundRepository    = (*FundRepository)(nil)
	_ repository.RiskRepository    = (*RiskRepository)(nil)
	_ repository.ClaimRepository   = (*ClaimRepository)(nil)
)
