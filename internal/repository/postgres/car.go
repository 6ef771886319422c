package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// CarRepository is a PostgreSQL implementation of repository.CarRepository.
type CarRepository struct {
	q Querier
}

// NewCarRepository creates a new PostgreSQL car repository.
func NewCarRepository(db *sqlx.DB) *CarRepository {
	return &CarRepository{q: db}
}

// NewCarRepositoryWithTx creates a car repository using a transaction.
func NewCarRepositoryWithTx(tx *sqlx.Tx) *CarRepository {
	return &CarRepository{q: tx}
}

type carRow struct {
	ID             string `db:"id"`
	OwnerID        string `db:"owner_id"`
	Currency       string `db:"currency"`
	DailyRateCents int64  `db:"daily_rate_cents"`
	DepositCents   int64  `db:"deposit_cents"`
	AutoApprove    bool   `db:"auto_approve"`
	CancelPolicy   string `db:"cancel_policy"`
	Active         bool   `db:"active"`
}

// Create persists a new car.
func (r *CarRepository) Create(ctx context.Context, car *domain.Car) error {
	query := `
		INSERT INTO cars (id, owner_id, currency, daily_rate_cents, deposit_cents, auto_approve, cancel_policy, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		car.ID,
		car.OwnerID,
		car.Currency,
		car.DailyRateCents,
		car.DepositCents,
		car.AutoApprove,
		car.CancelPolicy,
		car.Active,
	)
	return mapError(err)
}

// GetByID retrieves a car by ID.
func (r *CarRepository) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	query := `
		SELECT id, owner_id, currency, daily_rate_cents, deposit_cents, auto_approve, cancel_policy, active
		FROM cars WHERE id = $1
	`

	var row carRow
	if err := r.q.GetContext(ctx, &row, query, id); err != nil {
		return nil, mapError(err)
	}

	return &domain.Car{
		ID:             row.ID,
		OwnerID:        row.OwnerID,
		Currency:       row.Currency,
		DailyRateCents: row.DailyRateCents,
		DepositCents:   row.DepositCents,
		AutoApprove:    row.AutoApprove,
		CancelPolicy:   domain.CancelPolicy(row.CancelPolicy),
		Active:         row.Active,
	}, nil
}

// OwnerRepository is a PostgreSQL implementation of repository.OwnerRepository.
type OwnerRepository struct {
	q Querier
}

// NewOwnerRepository creates a new PostgreSQL owner repository.
func NewOwnerRepository(db *sqlx.DB) *OwnerRepository {
	return &OwnerRepository{q: db}
}

// NewOwnerRepositoryWithTx creates an owner repository using a transaction.
func NewOwnerRepositoryWithTx(tx *sqlx.Tx) *OwnerRepository {
	return &OwnerRepository{q: tx}
}

type standingRow struct {
	OwnerID          string    `db:"owner_id"`
	VisibilityFactor float64   `db:"visibility_factor"`
	PenaltyUntil     time.Time `db:"penalty_until"`
	Suspended        bool      `db:"suspended"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// GetStanding returns nil if the owner has never been penalized.
func (r *OwnerRepository) GetStanding(ctx context.Context, ownerID string) (*domain.OwnerStanding, error) {
	query := `
		SELECT owner_id, visibility_factor, penalty_until, suspended, updated_at
		FROM owner_standings WHERE owner_id = $1
	`

	var row standingRow
	if err := r.q.GetContext(ctx, &row, query, ownerID); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.OwnerStanding{
		OwnerID:          row.OwnerID,
		VisibilityFactor: row.VisibilityFactor,
		PenaltyUntil:     row.PenaltyUntil,
		Suspended:        row.Suspended,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// SaveStanding inserts or replaces an owner's standing.
func (r *OwnerRepository) SaveStanding(ctx context.Context, s *domain.OwnerStanding) error {
	query := `
		INSERT INTO owner_standings (owner_id, visibility_factor, penalty_until, suspended, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			visibility_factor = EXCLUDED.visibility_factor,
			penalty_until = EXCLUDED.penalty_until,
			suspended = EXCLUDED.suspended,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query, s.OwnerID, s.VisibilityFactor, s.PenaltyUntil, s.Suspended, s.UpdatedAt)
	return mapError(err)
}

// RecordCancellation stores one owner-initiated cancellation.
func (r *OwnerRepository) RecordCancellation(ctx context.Context, ownerID, bookingID string, at time.Time) error {
	query := `INSERT INTO owner_cancellations (owner_id, booking_id, cancelled_at) VALUES ($1, $2, $3)`

	_, err := r.q.ExecContext(ctx, query, ownerID, bookingID, at)
	return mapError(err)
}

// CountCancellationsSince counts owner cancellations at or after since.
func (r *OwnerRepository) CountCancellationsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM owner_cancellations WHERE owner_id = $1 AND cancelled_at >= $2`

	var n int
	if err := r.q.GetContext(ctx, &n, query, ownerID, since); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
