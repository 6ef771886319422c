package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// ClaimRepository is a PostgreSQL implementation of repository.ClaimRepository.
type ClaimRepository struct {
	q Querier
}

// NewClaimRepository creates a new PostgreSQL claim repository.
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{q: db}
}

// NewClaimRepositoryWithTx creates a claim repository using a transaction.
func NewClaimRepositoryWithTx(tx *sqlx.Tx) *ClaimRepository {
	return &ClaimRepository{q: tx}
}

type claimRow struct {
	ID                  string         `db:"id"`
	BookingID           string         `db:"booking_id"`
	Kind                string         `db:"kind"`
	OpenedBy            string         `db:"opened_by"`
	Reason              string         `db:"reason"`
	ClaimedCents        int64          `db:"claimed_cents"`
	Currency            string         `db:"currency"`
	Severity            string         `db:"severity"`
	Evidence            pq.StringArray `db:"evidence"`
	Status              string         `db:"status"`
	ChargedRenterCents  int64          `db:"charged_renter_cents"`
	RefundedRenterCents int64          `db:"refunded_renter_cents"`
	FGODrawCents        int64          `db:"fgo_draw_cents"`
	UncoveredCents      int64          `db:"uncovered_cents"`
	AtFault             bool           `db:"at_fault"`
	ResolutionNotes     string         `db:"resolution_notes"`
	ResolvedAt          sql.NullTime   `db:"resolved_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r claimRow) toDomain() *domain.Claim {
	return &domain.Claim{
		ID:                  r.ID,
		BookingID:           r.BookingID,
		Kind:                domain.ClaimKind(r.Kind),
		OpenedBy:            domain.ActorRole(r.OpenedBy),
		Reason:              r.Reason,
		ClaimedCents:        r.ClaimedCents,
		Currency:            r.Currency,
		Severity:            domain.Severity(r.Severity),
		Evidence:            []string(r.Evidence),
		Status:              domain.ClaimStatus(r.Status),
		ChargedRenterCents:  r.ChargedRenterCents,
		RefundedRenterCents: r.RefundedRenterCents,
		FGODrawCents:        r.FGODrawCents,
		UncoveredCents:      r.UncoveredCents,
		AtFault:             r.AtFault,
		ResolutionNotes:     r.ResolutionNotes,
		ResolvedAt:          fromNullTime(r.ResolvedAt),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

const claimColumns = `id, booking_id, kind, opened_by, reason, claimed_cents, currency, severity,
	evidence, status, charged_renter_cents, refunded_renter_cents, fgo_draw_cents,
	uncovered_cents, at_fault, resolution_notes, resolved_at, created_at, updated_at`

// Create persists a new claim.
func (r *ClaimRepository) Create(ctx context.Context, c *domain.Claim) error {
	query := `INSERT INTO claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.q.ExecContext(ctx, query,
		c.ID, c.BookingID, c.Kind, c.OpenedBy, c.Reason, c.ClaimedCents, c.Currency, c.Severity,
		pq.Array(c.Evidence), c.Status, c.ChargedRenterCents, c.RefundedRenterCents, c.FGODrawCents,
		c.UncoveredCents, c.AtFault, c.ResolutionNotes, toNullTime(c.ResolvedAt), c.CreatedAt, c.UpdatedAt,
	)
	return mapError(err)
}

// GetByID retrieves a claim by ID.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*domain.Claim, error) {
	var row claimRow
	if err := r.q.GetContext(ctx, &row, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetOpenByBooking returns nil if the booking has no claim in progress.
func (r *ClaimRepository) GetOpenByBooking(ctx context.Context, bookingID string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE booking_id = $1 AND status IN ('open', 'under_review')
		ORDER BY created_at DESC LIMIT 1`

	var row claimRow
	if err := r.q.GetContext(ctx, &row, query, bookingID); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Update writes the claim status and outcome.
func (r *ClaimRepository) Update(ctx context.Context, c *domain.Claim) error {
	query := `
		UPDATE claims SET
			kind = $1, reason = $2, claimed_cents = $3, severity = $4, evidence = $5, status = $6,
			charged_renter_cents = $7, refunded_renter_cents = $8, fgo_draw_cents = $9,
			uncovered_cents = $10, at_fault = $11, resolution_notes = $12, resolved_at = $13, updated_at = $14
		WHERE id = $15
	`

	result, err := r.q.ExecContext(ctx, query,
		c.Kind, c.Reason, c.ClaimedCents, c.Severity, pq.Array(c.Evidence), c.Status,
		c.ChargedRenterCents, c.RefundedRenterCents, c.FGODrawCents,
		c.UncoveredCents, c.AtFault, c.ResolutionNotes, toNullTime(c.ResolvedAt), c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return checkAffected(result)
}
