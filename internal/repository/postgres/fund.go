package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// FundRepository is a PostgreSQL implementation of repository.FundRepository.
type FundRepository struct {
	q Querier
}

// NewFundRepository creates a new PostgreSQL guarantee fund repository.
func NewFundRepository(db *sqlx.DB) *FundRepository {
	return &FundRepository{q: db}
}

// NewFundRepositoryWithTx creates a guarantee fund repository using a transaction.
func NewFundRepositoryWithTx(tx *sqlx.Tx) *FundRepository {
	return &FundRepository{q: tx}
}

type subfundRow struct {
	Type         string    `db:"type"`
	Currency     string    `db:"currency"`
	BalanceCents int64     `db:"balance_cents"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r subfundRow) toDomain() *domain.Subfund {
	return &domain.Subfund{
		Type:         domain.SubfundType(r.Type),
		Currency:     r.Currency,
		BalanceCents: r.BalanceCents,
		UpdatedAt:    r.UpdatedAt,
	}
}

// EnsureSubfunds creates any missing pool with a zero balance.
func (r *FundRepository) EnsureSubfunds(ctx context.Context, currency string) error {
	query := `
		INSERT INTO fgo_subfunds (type, currency, balance_cents, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (type) DO NOTHING
	`

	for _, t := range domain.AllSubfunds {
		if _, err := r.q.ExecContext(ctx, query, t, currency); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// GetSubfund retrieves one pool.
func (r *FundRepository) GetSubfund(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error) {
	var row subfundRow
	query := `SELECT type, currency, balance_cents, updated_at FROM fgo_subfunds WHERE type = $1`
	if err := r.q.GetContext(ctx, &row, query, t); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetSubfundForUpdate retrieves one pool with a row lock.
func (r *FundRepository) GetSubfundForUpdate(ctx context.Context, t domain.SubfundType) (*domain.Subfund, error) {
	var row subfundRow
	query := `SELECT type, currency, balance_cents, updated_at FROM fgo_subfunds WHERE type = $1 FOR UPDATE`
	if err := r.q.GetContext(ctx, &row, query, t); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// ListSubfunds returns all pools.
func (r *FundRepository) ListSubfunds(ctx context.Context) ([]*domain.Subfund, error) {
	var rows []subfundRow
	query := `SELECT type, currency, balance_cents, updated_at FROM fgo_subfunds ORDER BY type`
	if err := r.q.SelectContext(ctx, &rows, query); err != nil {
		return nil, mapError(err)
	}
	out := make([]*domain.Subfund, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateSubfund writes a pool balance.
func (r *FundRepository) UpdateSubfund(ctx context.Context, s *domain.Subfund) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE fgo_subfunds SET balance_cents = $1, updated_at = $2 WHERE type = $3`,
		s.BalanceCents, s.UpdatedAt, s.Type,
	)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(result)
}

// CreateContribution persists a booking contribution.
func (r *FundRepository) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	query := `
		INSERT INTO fgo_contributions (id, booking_id, amount_cents, currency, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query, c.ID, c.BookingID, c.AmountCents, c.Currency, c.CreatedAt)
	return mapError(err)
}

type contributionRow struct {
	ID          string    `db:"id"`
	BookingID   string    `db:"booking_id"`
	AmountCents int64     `db:"amount_cents"`
	Currency    string    `db:"currency"`
	CreatedAt   time.Time `db:"created_at"`
}

// GetContributionByBooking returns nil if the booking has not contributed.
func (r *FundRepository) GetContributionByBooking(ctx context.Context, bookingID string) (*domain.Contribution, error) {
	var row contributionRow
	query := `SELECT id, booking_id, amount_cents, currency, created_at FROM fgo_contributions WHERE booking_id = $1`
	if err := r.q.GetContext(ctx, &row, query, bookingID); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Contribution{
		ID:          row.ID,
		BookingID:   row.BookingID,
		AmountCents: row.AmountCents,
		Currency:    row.Currency,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// CreateMovement appends a fund movement.
func (r *FundRepository) CreateMovement(ctx context.Context, m *domain.FundMovement) error {
	query := `
		INSERT INTO fgo_movements (id, subfund, type, amount_cents, reference, user_id, operator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.Subfund, m.Type, m.AmountCents, m.Reference, m.UserID, m.OperatorID, m.CreatedAt,
	)
	return mapError(err)
}

// SumMovements returns the signed movement total of one pool.
func (r *FundRepository) SumMovements(ctx context.Context, t domain.SubfundType) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE
			WHEN type IN ('contribution', 'rebalance_in') THEN amount_cents
			ELSE -amount_cents END), 0)
		FROM fgo_movements WHERE subfund = $1
	`

	var sum int64
	if err := r.q.GetContext(ctx, &sum, query, t); err != nil {
		return 0, mapError(err)
	}
	return sum, nil
}

// Totals returns lifetime contributions and payouts.
func (r *FundRepository) Totals(ctx context.Context) (int64, int64, error) {
	query := `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'contribution'), 0) AS contributions,
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'payout'), 0) AS payouts
		FROM fgo_movements
	`

	var totals struct {
		Contributions int64 `db:"contributions"`
		Payouts       int64 `db:"payouts"`
	}
	if err := r.q.GetContext(ctx, &totals, query); err != nil {
		return 0, 0, mapError(err)
	}
	return totals.Contributions, totals.Payouts, nil
}

// PayoutsSince returns the payouts made at or after since.
func (r *FundRepository) PayoutsSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM fgo_movements WHERE type = 'payout' AND created_at >= $1`

	var sum int64
	if err := r.q.GetContext(ctx, &sum, query, since); err != nil {
		return 0, mapError(err)
	}
	return sum, nil
}

// CountUserEventsSince counts distinct claims paid for a renter at or after since.
func (r *FundRepository) CountUserEventsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT reference) FROM fgo_movements
		WHERE type = 'payout' AND user_id = $1 AND created_at >= $2
	`

	var n int
	if err := r.q.GetContext(ctx, &n, query, userID, since); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

type waterfallRow struct {
	ID             string    `db:"id"`
	BookingID      string    `db:"booking_id"`
	ClaimRef       string    `db:"claim_ref"`
	ClaimCents     int64     `db:"claim_cents"`
	Currency       string    `db:"currency"`
	Steps          []byte    `db:"steps"`
	RecoveredCents int64     `db:"recovered_cents"`
	UncoveredCents int64     `db:"uncovered_cents"`
	Description    string    `db:"description"`
	CreatedAt      time.Time `db:"created_at"`
}

// CreateWaterfall records a waterfall outcome. Steps are stored as JSON.
func (r *FundRepository) CreateWaterfall(ctx context.Context, w *domain.Waterfall) error {
	steps, err := json.Marshal(w.Steps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fgo_waterfalls
			(id, booking_id, claim_ref, claim_cents, currency, steps, recovered_cents, uncovered_cents, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.q.ExecContext(ctx, query,
		w.ID, w.BookingID, w.ClaimRef, w.ClaimCents, w.Currency, steps,
		w.RecoveredCents, w.UncoveredCents, w.Description, w.CreatedAt,
	)
	return mapError(err)
}

// GetWaterfall returns nil if no waterfall ran for the booking and claim.
func (r *FundRepository) GetWaterfall(ctx context.Context, bookingID, claimRef string) (*domain.Waterfall, error) {
	query := `
		SELECT id, booking_id, claim_ref, claim_cents, currency, steps, recovered_cents, uncovered_cents, description, created_at
		FROM fgo_waterfalls WHERE booking_id = $1 AND claim_ref = $2
	`

	var row waterfallRow
	if err := r.q.GetContext(ctx, &row, query, bookingID, claimRef); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	w := &domain.Waterfall{
		ID:             row.ID,
		BookingID:      row.BookingID,
		ClaimRef:       row.ClaimRef,
		ClaimCents:     row.ClaimCents,
		Currency:       row.Currency,
		RecoveredCents: row.RecoveredCents,
		UncoveredCents: row.UncoveredCents,
		Description:    row.Description,
		CreatedAt:      row.CreatedAt,
	}
	if err := json.Unmarshal(row.Steps, &w.Steps); err != nil {
		return nil, err
	}
	return w, nil
}

// CreateLoss records an uncovered amount.
func (r *FundRepository) CreateLoss(ctx context.Context, l *domain.Loss) error {
	query := `
		INSERT INTO fgo_losses (id, booking_id, claim_ref, renter_id, amount_cents, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		l.ID, l.BookingID, l.ClaimRef, l.RenterID, l.AmountCents, l.Currency, l.Status, l.CreatedAt,
	)
	return mapError(err)
}

// ListOpenLosses returns losses awaiting manual recovery.
func (r *FundRepository) ListOpenLosses(ctx context.Context) ([]*domain.Loss, error) {
	var rows []struct {
		ID          string    `db:"id"`
		BookingID   string    `db:"booking_id"`
		ClaimRef    string    `db:"claim_ref"`
		RenterID    string    `db:"renter_id"`
		AmountCents int64     `db:"amount_cents"`
		Currency    string    `db:"currency"`
		Status      string    `db:"status"`
		CreatedAt   time.Time `db:"created_at"`
	}
	query := `
		SELECT id, booking_id, claim_ref, renter_id, amount_cents, currency, status, created_at
		FROM fgo_losses WHERE status = 'open' ORDER BY created_at
	`
	if err := r.q.SelectContext(ctx, &rows, query); err != nil {
		return nil, mapError(err)
	}

	out := make([]*domain.Loss, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.Loss{
			ID:          row.ID,
			BookingID:   row.BookingID,
			ClaimRef:    row.ClaimRef,
			RenterID:    row.RenterID,
			AmountCents: row.AmountCents,
			Currency:    row.Currency,
			Status:      domain.LossStatus(row.Status),
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}
