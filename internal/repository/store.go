package repository

import "context"

// Repos groups the repositories that share one unit of work.
type Repos interface {
	Bookings() BookingRepository
	Cars() CarRepository
	Owners() OwnerRepository
	Wallets() WalletRepository
	Funds() FundRepository
	Risk() RiskRepository
	Claims() ClaimRepository
}

// Store gives non-transactional access to the repositories and runs
// units of work atomically.
type Store interface {
	Repos

	// WithTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repos) error) error
}
