package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"autorent/internal/domain"
)

// RiskRepository is a PostgreSQL implementation of repository.RiskRepository.
type RiskRepository struct {
	q Querier
}

// NewRiskRepository creates a new PostgreSQL risk profile repository.
func NewRiskRepository(db *sqlx.DB) *RiskRepository {
	return &RiskRepository{q: db}
}

// NewRiskRepositoryWithTx creates a risk profile repository using a transaction.
func NewRiskRepositoryWithTx(tx *sqlx.Tx) *RiskRepository {
	return &RiskRepository{q: tx}
}

type profileRow struct {
	UserID          string       `db:"user_id"`
	Class           int          `db:"class"`
	DriverScore     int          `db:"driver_score"`
	TotalClaims     int          `db:"total_claims"`
	CleanBookings   int          `db:"clean_bookings"`
	GoodYears       int          `db:"good_years"`
	LastClaimAt     sql.NullTime `db:"last_claim_at"`
	LastClassChange sql.NullTime `db:"last_class_change"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r profileRow) toDomain() *domain.DriverRiskProfile {
	return &domain.DriverRiskProfile{
		UserID:          r.UserID,
		Class:           r.Class,
		DriverScore:     r.DriverScore,
		TotalClaims:     r.TotalClaims,
		CleanBookings:   r.CleanBookings,
		GoodYears:       r.GoodYears,
		LastClaimAt:     fromNullTime(r.LastClaimAt),
		LastClassChange: fromNullTime(r.LastClassChange),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const profileColumns = `user_id, class, driver_score, total_claims, clean_bookings, good_years,
	last_claim_at, last_class_change, created_at, updated_at`

// GetProfile retrieves a profile by user ID.
func (r *RiskRepository) GetProfile(ctx context.Context, userID string) (*domain.DriverRiskProfile, error) {
	var row profileRow
	if err := r.q.GetContext(ctx, &row, `SELECT `+profileColumns+` FROM risk_profiles WHERE user_id = $1`, userID); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// SaveProfile inserts or replaces a profile.
func (r *RiskRepository) SaveProfile(ctx context.Context, p *domain.DriverRiskProfile) error {
	query := `
		INSERT INTO risk_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			class = EXCLUDED.class,
			driver_score = EXCLUDED.driver_score,
			total_claims = EXCLUDED.total_claims,
			clean_bookings = EXCLUDED.clean_bookings,
			good_years = EXCLUDED.good_years,
			last_claim_at = EXCLUDED.last_claim_at,
			last_class_change = EXCLUDED.last_class_change,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		p.UserID, p.Class, p.DriverScore, p.TotalClaims, p.CleanBookings, p.GoodYears,
		toNullTime(p.LastClaimAt), toNullTime(p.LastClassChange), p.CreatedAt, p.UpdatedAt,
	)
	return mapError(err)
}

// ListDueForImprovement returns profiles above floor with no claim and no
// class change since cutoff.
func (r *RiskRepository) ListDueForImprovement(ctx context.Context, cutoff time.Time, floor, limit int) ([]*domain.DriverRiskProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM risk_profiles
		WHERE class > $2
			AND (last_claim_at IS NULL OR last_claim_at <= $1)
			AND (last_class_change IS NULL OR last_class_change <= $1)
		ORDER BY user_id LIMIT $3`

	var rows []profileRow
	if err := r.q.SelectContext(ctx, &rows, query, cutoff, floor, limit); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domain.DriverRiskProfile, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
