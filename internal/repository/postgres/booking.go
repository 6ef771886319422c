package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sqlx.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `
	id, car_id, renter_id, owner_id, start_at, end_at, status,
	currency, days, daily_rate_cents, subtotal_cents, service_fee_cents,
	insurance_cents, deposit_cents, total_cents, risk_class, demand_multiplier,
	payment_mode, cancel_policy, wallet_lock_ref, wallet_status, card_hold_id,
	card_hold_cents, card_captured_cents, insurance_policy, claim_id, owner_confirmed_delivery,
	renter_confirmed_payment, returned_at, funds_released_at, rental_settled_at,
	cancelled_by, cancel_reason, cancellation_fee_cents, expires_at,
	created_at, updated_at, version`

type bookingRow struct {
	ID                     string       `db:"id"`
	CarID                  string       `db:"car_id"`
	RenterID               string       `db:"renter_id"`
	OwnerID                string       `db:"owner_id"`
	StartAt                time.Time    `db:"start_at"`
	EndAt                  time.Time    `db:"end_at"`
	Status                 string       `db:"status"`
	Currency               string       `db:"currency"`
	Days                   int          `db:"days"`
	DailyRateCents         int64        `db:"daily_rate_cents"`
	SubtotalCents          int64        `db:"subtotal_cents"`
	ServiceFeeCents        int64        `db:"service_fee_cents"`
	InsuranceCents         int64        `db:"insurance_cents"`
	DepositCents           int64        `db:"deposit_cents"`
	TotalCents             int64        `db:"total_cents"`
	RiskClass              int          `db:"risk_class"`
	DemandMultiplier       string       `db:"demand_multiplier"`
	PaymentMode            string       `db:"payment_mode"`
	CancelPolicy           string       `db:"cancel_policy"`
	WalletLockRef          string       `db:"wallet_lock_ref"`
	WalletStatus           string       `db:"wallet_status"`
	CardHoldID             string       `db:"card_hold_id"`
	CardHoldCents          int64        `db:"card_hold_cents"`
	CardCapturedCents      int64        `db:"card_captured_cents"`
	InsurancePolicy        string       `db:"insurance_policy"`
	ClaimID                string       `db:"claim_id"`
	OwnerConfirmedDelivery bool         `db:"owner_confirmed_delivery"`
	RenterConfirmedPayment bool         `db:"renter_confirmed_payment"`
	ReturnedAt             sql.NullTime `db:"returned_at"`
	FundsReleasedAt        sql.NullTime `db:"funds_released_at"`
	RentalSettledAt        sql.NullTime `db:"rental_settled_at"`
	CancelledBy            string       `db:"cancelled_by"`
	CancelReason           string       `db:"cancel_reason"`
	CancellationFeeCents   int64        `db:"cancellation_fee_cents"`
	ExpiresAt              sql.NullTime `db:"expires_at"`
	CreatedAt              time.Time    `db:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at"`
	Version                int64        `db:"version"`
}

func (r bookingRow) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:       r.ID,
		CarID:    r.CarID,
		RenterID: r.RenterID,
		OwnerID:  r.OwnerID,
		StartAt:  r.StartAt,
		EndAt:    r.EndAt,
		Status:   domain.BookingStatus(r.Status),
		Price: domain.PriceBreakdown{
			Currency:         r.Currency,
			Days:             r.Days,
			DailyRateCents:   r.DailyRateCents,
			SubtotalCents:    r.SubtotalCents,
			ServiceFeeCents:  r.ServiceFeeCents,
			InsuranceCents:   r.InsuranceCents,
			DepositCents:     r.DepositCents,
			TotalCents:       r.TotalCents,
			RiskClass:        r.RiskClass,
			DemandMultiplier: r.DemandMultiplier,
		},
		PaymentMode:            domain.PaymentMode(r.PaymentMode),
		CancelPolicy:           domain.CancelPolicy(r.CancelPolicy),
		WalletLockRef:          r.WalletLockRef,
		WalletStatus:           domain.WalletStatus(r.WalletStatus),
		CardHoldID:             r.CardHoldID,
		CardHoldCents:          r.CardHoldCents,
		CardCapturedCents:      r.CardCapturedCents,
		InsurancePolicy:        r.InsurancePolicy,
		ClaimID:                r.ClaimID,
		OwnerConfirmedDelivery: r.OwnerConfirmedDelivery,
		RenterConfirmedPayment: r.RenterConfirmedPayment,
		ReturnedAt:             fromNullTime(r.ReturnedAt),
		FundsReleasedAt:        fromNullTime(r.FundsReleasedAt),
		RentalSettledAt:        fromNullTime(r.RentalSettledAt),
		CancelledBy:            domain.ActorRole(r.CancelledBy),
		CancelReason:           r.CancelReason,
		CancellationFeeCents:   r.CancellationFeeCents,
		ExpiresAt:              fromNullTime(r.ExpiresAt),
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
		Version:                r.Version,
	}
}

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31,
			$32, $33, $34, $35, $36, $37, $38)`

	_, err := r.q.ExecContext(ctx, query,
		b.ID, b.CarID, b.RenterID, b.OwnerID, b.StartAt, b.EndAt, b.Status,
		b.Price.Currency, b.Price.Days, b.Price.DailyRateCents, b.Price.SubtotalCents, b.Price.ServiceFeeCents,
		b.Price.InsuranceCents, b.Price.DepositCents, b.Price.TotalCents, b.Price.RiskClass, b.Price.DemandMultiplier,
		b.PaymentMode, b.CancelPolicy, b.WalletLockRef, b.WalletStatus, b.CardHoldID,
		b.CardHoldCents, b.CardCapturedCents, b.InsurancePolicy, b.ClaimID, b.OwnerConfirmedDelivery,
		b.RenterConfirmedPayment, toNullTime(b.ReturnedAt), toNullTime(b.FundsReleasedAt), toNullTime(b.RentalSettledAt),
		b.CancelledBy, b.CancelReason, b.CancellationFeeCents, toNullTime(b.ExpiresAt),
		b.CreatedAt, b.UpdatedAt, b.Version,
	)
	return mapError(err)
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a booking and locks its row.
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) get(ctx context.Context, query string, id string) (*domain.Booking, error) {
	var row bookingRow
	if err := r.q.GetContext(ctx, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// Update writes the mutable booking fields if the version matches.
func (r *BookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `
		UPDATE bookings SET
			status = $1, wallet_lock_ref = $2, wallet_status = $3, card_hold_id = $4,
			card_hold_cents = $5, card_captured_cents = $6, insurance_policy = $7, claim_id = $8,
			owner_confirmed_delivery = $9, renter_confirmed_payment = $10,
			returned_at = $11, funds_released_at = $12, rental_settled_at = $13,
			cancelled_by = $14, cancel_reason = $15, cancellation_fee_cents = $16,
			expires_at = $17, updated_at = $18, version = version + 1
		WHERE id = $19 AND version = $20
	`

	result, err := r.q.ExecContext(ctx, query,
		b.Status, b.WalletLockRef, b.WalletStatus, b.CardHoldID,
		b.CardHoldCents, b.CardCapturedCents, b.InsurancePolicy, b.ClaimID,
		b.OwnerConfirmedDelivery, b.RenterConfirmedPayment,
		toNullTime(b.ReturnedAt), toNullTime(b.FundsReleasedAt), toNullTime(b.RentalSettledAt),
		b.CancelledBy, b.CancelReason, b.CancellationFeeCents,
		toNullTime(b.ExpiresAt), b.UpdatedAt,
		b.ID, b.Version,
	)
	if err != nil {
		return mapError(err)
	}

	if err := checkAffected(result); err != nil {
		// Distinguish a stale version from a missing row.
		var exists bool
		if qerr := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, b.ID); qerr != nil {
			return mapError(qerr)
		}
		if exists {
			return repository.ErrConflict
		}
		return err
	}

	b.Version++
	return nil
}

// LockCar takes a transaction-scoped advisory lock keyed by the car.
func (r *BookingRepository) LockCar(ctx context.Context, carID string) error {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('car:' || $1))`, carID)
	return mapError(err)
}

// ListActiveByCar returns calendar-holding bookings overlapping [start, end).
func (r *BookingRepository) ListActiveByCar(ctx context.Context, carID string, start, end time.Time) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE car_id = $1 AND start_at < $3 AND end_at > $2 AND NOT (status = ANY($4))
		ORDER BY start_at`

	return r.list(ctx, query, carID, start, end, pq.Array(releasedStatuses()))
}

// ListExpired returns unconfirmed bookings whose hold expired.
func (r *BookingRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN ('pending', 'pending_payment', 'pending_approval', 'pending_owner_approval')
			AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY created_at LIMIT $2`

	return r.list(ctx, query, now, limit)
}

// ListReturnedBefore returns returned bookings awaiting inspection since before cutoff.
func (r *BookingRepository) ListReturnedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN ('returned', 'pending_review') AND returned_at < $1
		ORDER BY returned_at LIMIT $2`

	return r.list(ctx, query, cutoff, limit)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	var rows []bookingRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	bookings := make([]*domain.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toDomain())
	}
	return bookings, nil
}

// releasedStatuses lists statuses that no longer hold a car's calendar.
func releasedStatuses() []string {
	var out []string
	for _, s := range domain.AllBookingStatuses {
		if !s.HoldsCalendar() {
			out = append(out, string(s))
		}
	}
	return out
}
