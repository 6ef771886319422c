package repository

import (
	"context"
	"time"

	"autorent/internal/domain"
)

// FundRepository defines the persistence operations for the guarantee fund.
type FundRepository interface {
	// EnsureSubfunds creates any missing pool with a zero balance.
	EnsureSubfunds(ctx context.Context, currency string) error

	// GetSubfund retrieves one pool.
	GetSubfund(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error)

	// GetSubfundForUpdate retrieves one pool and locks it until the
	// surrounding transaction ends.
	GetSubfundForUpdate(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error)

	// ListSubfunds returns all pools.
	ListSubfunds(ctx context.Context) ([]*domain.Subfund, error)

	// UpdateSubfund writes a pool balance.
	UpdateSubfund(ctx context.Context, subfund *domain.Subfund) error

	// CreateContribution persists a booking contribution.
	// Returns ErrDuplicate if the booking already contributed.
	CreateContribution(ctx context.Context, c *domain.Contribution) error

	// GetContributionByBooking returns nil if the booking has not contributed.
	GetContributionByBooking(ctx context.Context, bookingID string) (*domain.Contribution, error)

	// CreateMovement appends a fund movement.
	CreateMovement(ctx context.Context, m *domain.FundMovement) error

	// SumMovements returns the signed movement total of one pool.
	SumMovements(ctx context.Context, t domain.SubfundType) (int64, error)

	// Totals returns lifetime contributions and payouts.
	Totals(ctx context.Context) (contributions, payouts int64, err error)

	// PayoutsSince returns the payouts made at or after since.
	PayoutsSince(ctx context.Context, since time.Time) (int64, error)

	// CountUserEventsSince counts distinct claims paid for a renter at or after since.
	CountUserEventsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// CreateWaterfall records a waterfall outcome.
	CreateWaterfall(ctx context.Context, w *domain.Waterfall) error

	// GetWaterfall returns nil if no waterfall ran for the booking and claim.
	GetWaterfall(ctx context.Context, bookingID, claimRef string) (*domain.Waterfall, error)

	// CreateLoss records an uncovered amount.
	CreateLoss(ctx context.Context, loss *domain.Loss) error

	// ListOpenLosses returns losses awaiting manual recovery.
	ListOpenLosses(ctx context.Context) ([]*domain.Loss, error)
}
