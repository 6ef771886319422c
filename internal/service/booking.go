package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/metrics"
	"autorent/internal/repository"
)

const insuranceFailureReason = "system_failure:insurance_activation_failed"

// BookingService owns the booking lifecycle. Every transition and the
// money movement it causes commit in one unit of work.
type BookingService struct {
	store    repository.Store
	life     *lifecycle
	ledger   *Ledger
	pricing  *PricingService
	risk     *RiskService
	fund     *FundService
	settler  *Settler
	disputes *DisputeService
	insurer  *insuranceActivator
	policy   config.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// RequestBookingRequest contains the parameters for requesting a booking.
type RequestBookingRequest struct {
	CarID          string
	RenterID       string
	StartAt        time.Time
	EndAt          time.Time
	PaymentMode    domain.PaymentMode
	PriceLockToken string // Optional: honors a quoted price
}

// CreateCarRequest contains the parameters for listing a car.
type CreateCarRequest struct {
	OwnerID        string
	Currency       string
	DailyRateCents int64
	DepositCents   int64
	AutoApprove    bool
	CancelPolicy   domain.CancelPolicy
}

// InspectionRequest reports the state of a returned car.
type InspectionRequest struct {
	BookingID   string
	OwnerID     string
	Damaged     bool
	AmountCents int64
	Description string
	Severity    domain.Severity
	Evidence    []string
}

// CancelRequest contains the parameters for cancelling a booking.
type CancelRequest struct {
	BookingID string
	ActorID   string
	Actor     domain.ActorRole
	Reason    string
	Force     bool // skips the fee and the start-time window
}

// NoShowRequest reports that the other party did not show up.
type NoShowRequest struct {
	BookingID  string
	ReporterID string
}

// DamageRequest completes a booking with damages.
type DamageRequest struct {
	BookingID   string
	AmountCents int64
	Description string
	Severity    domain.Severity
}

// ChargeBookingRequest is an extra charge against a booking (tolls, fuel).
// The owner asks for it, or an operator on the owner's behalf.
type ChargeBookingRequest struct {
	BookingID   string
	ActorID     string
	OperatorID  string
	AmountCents int64
	Description string
}

// BookingCharge is the outcome of an extra charge.
type BookingCharge struct {
	ChargedCents          int64
	RemainingDepositCents int64
}

// ClaimWaterfallRequest draws a claim against a booking.
type ClaimWaterfallRequest struct {
	BookingID   string
	ClaimRef    string // Optional: defaults to "manual"
	AmountCents int64
	Description string
}

// ──────────────────────────────────────────────
// REQUEST & PAYMENT
// ──────────────────────────────────────────────

// RequestBooking prices the range, holds the renter's funds and creates
// the booking. Wallet bookings start in pending; card bookings start in
// pending_payment until the provider authorizes the hold. Insurance must
// activate or the booking is cancelled and its funds released.
func (s *BookingService) RequestBooking(ctx context.Context, req RequestBookingRequest) (*domain.Booking, error) {
	if req.CarID == "" || req.RenterID == "" {
		return nil, ErrInvalidID
	}
	if !req.PaymentMode.Valid() {
		return nil, ErrInvalidPaymentMode
	}
	if req.StartAt.IsZero() || !req.EndAt.After(req.StartAt) || req.StartAt.Before(s.now()) {
		return nil, ErrInvalidRange
	}

	car, err := s.store.Cars().GetByID(ctx, req.CarID)
	if err != nil {
		return nil, notFound(err, ErrCarNotFound)
	}
	if !car.Active {
		return nil, ErrCarUnavailable
	}
	if car.OwnerID == req.RenterID {
		return nil, fmt.Errorf("%w: owners cannot rent their own car", ErrNotPermitted)
	}
	standing, err := s.store.Owners().GetStanding(ctx, car.OwnerID)
	if err != nil {
		return nil, err
	}
	if standing != nil && standing.Suspended {
		return nil, ErrOwnerSuspended
	}

	price, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	draft := domain.Booking{
		ID:           uuid.New().String(),
		CarID:        car.ID,
		RenterID:     req.RenterID,
		OwnerID:      car.OwnerID,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		Status:       domain.BookingStatusPending,
		Price:        price,
		PaymentMode:  req.PaymentMode,
		CancelPolicy: car.CancelPolicy,
		WalletStatus: domain.WalletStatusNone,
		ExpiresAt:    now.Add(s.policy.Booking.HoldWindow),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var lockAmount int64
	switch req.PaymentMode {
	case domain.PaymentModeWallet:
		lockAmount = price.HoldCents()
	case domain.PaymentModePartialWallet:
		lockAmount = price.DepositCents
		draft.Status = domain.BookingStatusPendingPayment
	case domain.PaymentModeCard:
		draft.Status = domain.BookingStatusPendingPayment
	}
	if lockAmount > 0 {
		draft.WalletLockRef = domain.RentalLockRef(draft.ID)
	}

	var created *domain.Booking
	err = s.life.tx.run(ctx, func(tx repository.Repos) error {
		if err := tx.Bookings().LockCar(ctx, car.ID); err != nil {
			return err
		}
		if err := s.checkCalendar(ctx, tx, car.ID, req.StartAt, req.EndAt); err != nil {
			return err
		}

		b := draft
		if lockAmount > 0 {
			if _, err := s.ledger.lockTx(ctx, tx, LockRequest{
				UserID:      b.RenterID,
				AmountCents: lockAmount,
				Currency:    price.Currency,
				Reference:   b.WalletLockRef,
			}); err != nil {
				return err
			}
			b.WalletStatus = domain.WalletStatusLocked
		}
		if err := tx.Bookings().Create(ctx, &b); err != nil {
			return err
		}
		created = &b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition("", string(created.Status))
	s.logger.Info("booking requested",
		"booking_id", created.ID,
		"car_id", created.CarID,
		"renter_id", created.RenterID,
		"payment_mode", created.PaymentMode,
		"hold_cents", price.HoldCents(),
	)
	notify(ctx, s.life.notifier, s.logger, bookingEvent(domain.EventBookingRequested, created, nil))

	if created.PaymentMode.UsesCard() {
		return s.authorize(ctx, created)
	}
	return s.activateInsurance(ctx, created)
}

// CompletePaymentAuthorization records a card hold and moves the booking
// to pending. A hold that arrives after the booking moved on is voided.
func (s *BookingService) CompletePaymentAuthorization(ctx context.Context, bookingID, holdID string) (*domain.Booking, error) {
	if holdID == "" {
		return nil, ErrInvalidID
	}
	var stale bool
	b, err := s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if b.CardHoldID == holdID {
			return errNoop
		}
		if !inStatus(b, domain.BookingStatusPendingPayment) {
			stale = true
			return errNoop
		}
		b.CardHoldID = holdID
		b.CardHoldCents = cardAmount(b)
		b.ExpiresAt = s.now().Add(s.policy.Booking.HoldWindow)
		return moveTo(b, domain.BookingStatusPending)
	})
	if err != nil {
		return nil, err
	}
	if stale {
		s.life.voidHold(ctx, b, holdID)
		return b, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.Status)
	}
	if b.InsurancePolicy != "" || b.Status != domain.BookingStatusPending {
		return b, nil
	}
	return s.activateInsurance(ctx, b)
}

// RetryPayment lets a renter try the card again after a decline.
func (s *BookingService) RetryPayment(ctx context.Context, bookingID, renterID string) (*domain.Booking, error) {
	b, err := s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := permit(renterID, b.RenterID); err != nil {
			return err
		}
		if err := checkTransition(b, domain.BookingStatusPendingPayment); err != nil {
			return err
		}
		if err := tx.Bookings().LockCar(ctx, b.CarID); err != nil {
			return err
		}
		if err := s.checkCalendar(ctx, tx, b.CarID, b.StartAt, b.EndAt); err != nil {
			return err
		}
		if b.PaymentMode == domain.PaymentModePartialWallet {
			b.WalletLockRef = fmt.Sprintf("%s:retry:%d", domain.RentalLockRef(b.ID), b.Version)
			if _, err := s.ledger.lockTx(ctx, tx, LockRequest{
				UserID:      b.RenterID,
				AmountCents: b.Price.DepositCents,
				Currency:    b.Price.Currency,
				Reference:   b.WalletLockRef,
			}); err != nil {
				return err
			}
			b.WalletStatus = domain.WalletStatusLocked
		}
		b.FundsReleasedAt = time.Time{}
		b.ExpiresAt = s.now().Add(s.policy.Booking.HoldWindow)
		return moveTo(b, domain.BookingStatusPendingPayment)
	})
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, b)
}

// authorize asks the provider for the card hold outside any unit of work.
func (s *BookingService) authorize(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	holdID, err := s.life.provider.Authorize(ctx, AuthorizeRequest{
		BookingID:   b.ID,
		UserID:      b.RenterID,
		AmountCents: cardAmount(b),
		Currency:    b.Price.Currency,
	})
	switch {
	case err == nil:
		return s.CompletePaymentAuthorization(ctx, b.ID, holdID)
	case errors.Is(err, ErrProviderDeclined):
		failed, ferr := s.failPayment(ctx, b.ID, err.Error())
		if ferr != nil {
			return nil, ferr
		}
		return failed, err
	default:
		s.life.enqueue(ctx, &domain.ProviderJob{
			Op:          domain.ProviderAuthorize,
			BookingID:   b.ID,
			UserID:      b.RenterID,
			AmountCents: cardAmount(b),
			Currency:    b.Price.Currency,
			LastError:   err.Error(),
		})
		return b, nil
	}
}

// failPayment moves a declined booking to payment_validation_failed and
// releases its wallet lock.
func (s *BookingService) failPayment(ctx context.Context, bookingID, reason string) (*domain.Booking, error) {
	b, err := s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if !inStatus(b, domain.BookingStatusPendingPayment) {
			return errNoop
		}
		if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
			return err
		}
		return moveTo(b, domain.BookingStatusPaymentValidationFailed)
	})
	if err != nil {
		return nil, err
	}
	notify(ctx, s.life.notifier, s.logger, bookingEvent(domain.EventPaymentDeclined, b, map[string]string{"reason": reason}))
	return b, nil
}

// activateInsurance issues the mandatory policy. On failure the booking is
// cancelled by the system and its funds released.
func (s *BookingService) activateInsurance(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	policyID, err := s.insurer.activate(ctx, b)
	if err != nil {
		s.logger.Error("insurance activation failed", "booking_id", b.ID, "error", err)
		cancelled, cerr := s.life.update(ctx, b.ID, func(tx repository.Repos, b *domain.Booking) error {
			if b.Status.IsTerminal() {
				return errNoop
			}
			if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
				return err
			}
			b.CancelledBy = domain.ActorSystem
			b.CancelReason = insuranceFailureReason
			return moveTo(b, domain.BookingStatusCancelledSystem)
		})
		if cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		notify(ctx, s.life.notifier, s.logger, bookingEvent(domain.EventInsuranceFailed, cancelled, nil))
		return cancelled, err
	}

	return s.life.update(ctx, b.ID, func(tx repository.Repos, b *domain.Booking) error {
		if b.InsurancePolicy != "" {
			return errNoop
		}
		b.InsurancePolicy = policyID
		car, err := tx.Cars().GetByID(ctx, b.CarID)
		if err != nil {
			return notFound(err, ErrCarNotFound)
		}
		if car.AutoApprove && inStatus(b, domain.BookingStatusPending) {
			return moveTo(b, domain.BookingStatusConfirmed)
		}
		return nil
	})
}

// ──────────────────────────────────────────────
// OWNER DECISION & RENTAL
// ──────────────────────────────────────────────

// Approve confirms a pending booking.
func (s *BookingService) Approve(ctx context.Context, bookingID, ownerID string) (*domain.Booking, error) {
	return s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := permit(ownerID, b.OwnerID); err != nil {
			return err
		}
		if err := checkTransition(b, domain.BookingStatusConfirmed); err != nil {
			return err
		}
		if b.InsurancePolicy == "" {
			return ErrInsuranceNotActive
		}
		return moveTo(b, domain.BookingStatusConfirmed)
	})
}

// Reject declines a pending booking and releases the renter's funds.
func (s *BookingService) Reject(ctx context.Context, bookingID, ownerID, reason string) (*domain.Booking, error) {
	return s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := permit(ownerID, b.OwnerID); err != nil {
			return err
		}
		if err := checkTransition(b, domain.BookingStatusRejected); err != nil {
			return err
		}
		if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
			return err
		}
		b.CancelledBy = domain.ActorOwner
		b.CancelReason = reason
		return moveTo(b, domain.BookingStatusRejected)
	})
}

// Start hands the car to the renter. Either party may record the pickup;
// only the owner's call confirms delivery.
func (s *BookingService) Start(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	return s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if actorID == "" || (actorID != b.RenterID && actorID != b.OwnerID) {
			return fmt.Errorf("%w: %s", ErrNotPermitted, actorID)
		}
		if actorID == b.OwnerID {
			b.OwnerConfirmedDelivery = true
		}
		return moveTo(b, domain.BookingStatusInProgress)
	})
}

// Return records that the renter brought the car back.
func (s *BookingService) Return(ctx context.Context, bookingID, renterID string) (*domain.Booking, error) {
	return s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := permit(renterID, b.RenterID); err != nil {
			return err
		}
		b.ReturnedAt = s.now()
		return moveTo(b, domain.BookingStatusReturned)
	})
}

// SubmitInspection records the owner's inspection. A damage report files
// a claim against the booking.
func (s *BookingService) SubmitInspection(ctx context.Context, req InspectionRequest) (*domain.Booking, error) {
	if req.Damaged {
		if req.AmountCents <= 0 || req.Description == "" || len(req.Evidence) == 0 {
			return nil, ErrDamageDetailsRequired
		}
		if !req.Severity.Valid() {
			return nil, ErrInvalidSeverity
		}
	}

	var claim *domain.Claim
	b, err := s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := permit(req.OwnerID, b.OwnerID); err != nil {
			return err
		}
		if !req.Damaged {
			return moveTo(b, domain.BookingStatusInspectedGood)
		}
		if err := checkTransition(b, domain.BookingStatusDamageReported); err != nil {
			return err
		}
		var err error
		claim, err = s.disputes.fileClaimTx(ctx, tx, b, claimInput{
			Kind:         domain.ClaimKindDamage,
			OpenedBy:     domain.ActorOwner,
			Reason:       req.Description,
			ClaimedCents: req.AmountCents,
			Severity:     req.Severity,
			Evidence:     req.Evidence,
		})
		if err != nil {
			return err
		}
		b.ClaimID = claim.ID
		return moveTo(b, domain.BookingStatusDamageReported)
	})
	if err != nil {
		return nil, err
	}
	if claim != nil {
		notify(ctx, s.life.notifier, s.logger, claimEvent(domain.EventClaimOpened, claim))
	}
	return b, nil
}

// ──────────────────────────────────────────────
// CANCELLATION & NO-SHOW
// ──────────────────────────────────────────────

// Cancel cancels a booking that has not started. Renters pay the fee of
// the car's cancellation tier; owners are penalized.
func (s *BookingService) Cancel(ctx context.Context, req CancelRequest) (*domain.Booking, error) {
	var target domain.BookingStatus
	switch req.Actor {
	case domain.ActorRenter:
		target = domain.BookingStatusCancelledRenter
	case domain.ActorOwner:
		target = domain.BookingStatusCancelledOwner
	case domain.ActorSystem, domain.ActorAdmin:
		target = domain.BookingStatusCancelledSystem
	default:
		return nil, ErrNotPermitted
	}

	return s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		switch req.Actor {
		case domain.ActorRenter:
			if err := permit(req.ActorID, b.RenterID); err != nil {
				return err
			}
		case domain.ActorOwner:
			if err := permit(req.ActorID, b.OwnerID); err != nil {
				return err
			}
		}
		if err := checkTransition(b, target); err != nil {
			return err
		}
		now := s.now()
		if !req.Force && !now.Before(b.StartAt) {
			return ErrCancellationWindowClosed
		}

		if req.Actor == domain.ActorRenter && !req.Force {
			if fee := s.cancellationFee(b, now); fee > 0 {
				drawn, err := s.settler.drawRentalTx(ctx, tx, b, fee, []Payee{{UserID: b.OwnerID, AmountCents: fee}}, "cancellation fee")
				if err != nil {
					return err
				}
				b.CancellationFeeCents = drawn
			}
		}
		if req.Actor == domain.ActorOwner {
			if err := s.penalizeOwnerTx(ctx, tx, b.OwnerID, b.ID); err != nil {
				return err
			}
		}
		if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
			return err
		}
		b.CancelledBy = req.Actor
		b.CancelReason = req.Reason
		return moveTo(b, target)
	})
}

// ReportNoShow ends a confirmed booking whose start passed without the
// other party. An owner reporting the renter keeps the first day's rate; a
// renter reporting the owner gets everything back and the owner is penalized.
func (s *BookingService) ReportNoShow(ctx context.Context, req NoShowRequest) (*domain.Booking, error) {
	return s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := checkTransition(b, domain.BookingStatusNoShow); err != nil {
			return err
		}
		if s.now().Before(b.StartAt) {
			return ErrNoShowTooEarly
		}

		switch req.ReporterID {
		case b.OwnerID:
			fee := min(b.Price.DailyRateCents, b.Price.SubtotalCents)
			drawn, err := s.settler.drawRentalTx(ctx, tx, b, fee, []Payee{{UserID: b.OwnerID, AmountCents: fee}}, "renter no-show")
			if err != nil {
				return err
			}
			b.CancellationFeeCents = drawn
			b.CancelledBy = domain.ActorOwner
			b.CancelReason = "renter_no_show"
		case b.RenterID:
			if err := s.penalizeOwnerTx(ctx, tx, b.OwnerID, b.ID); err != nil {
				return err
			}
			b.CancelledBy = domain.ActorRenter
			b.CancelReason = "owner_no_show"
		default:
			return ErrNotPermitted
		}
		if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
			return err
		}
		return moveTo(b, domain.BookingStatusNoShow)
	})
}

func (s *BookingService) cancellationFee(b *domain.Booking, now time.Time) int64 {
	var tiers []config.CancellationTier
	switch b.CancelPolicy {
	case domain.CancelPolicyModerate:
		tiers = s.policy.Cancellation.Moderate
	case domain.CancelPolicyStrict:
		tiers = s.policy.Cancellation.Strict
	default:
		tiers = s.policy.Cancellation.Flexible
	}
	notice := b.StartAt.Sub(now)
	if len(tiers) == 0 {
		return 0
	}
	tier := tiers[len(tiers)-1]
	for _, t := range tiers {
		if notice >= t.MinNotice {
			tier = t
			break
		}
	}
	return percentOf(b.Price.SubtotalCents, tier.FeePct)
}

// penalizeOwnerTx records an owner cancellation, lowers the owner's
// visibility and suspends owners who cancel too often.
func (s *BookingService) penalizeOwnerTx(ctx context.Context, tx repository.Repos, ownerID, bookingID string) error {
	p := s.policy.Owner
	now := s.now()
	if err := tx.Owners().RecordCancellation(ctx, ownerID, bookingID, now); err != nil {
		return err
	}
	count, err := tx.Owners().CountCancellationsSince(ctx, ownerID, now.Add(-p.SuspensionWindow))
	if err != nil {
		return err
	}
	standing, err := tx.Owners().GetStanding(ctx, ownerID)
	if err != nil {
		return err
	}
	if standing == nil {
		standing = &domain.OwnerStanding{OwnerID: ownerID}
	}
	standing.VisibilityFactor = p.PenaltyVisibility
	standing.PenaltyUntil = now.Add(p.PenaltyDuration)
	if count >= p.SuspensionThreshold {
		standing.Suspended = true
		s.logger.Warn("owner suspended", "owner_id", ownerID, "cancellations", count)
	}
	standing.UpdatedAt = now
	return tx.Owners().SaveStanding(ctx, standing)
}

// ──────────────────────────────────────────────
// COMPLETION & CHARGES
// ──────────────────────────────────────────────

// CompleteClean settles the rental to the owner and releases the deposit.
// It performs no actor check; HTTP callers go through CompleteCleanBy.
func (s *BookingService) CompleteClean(ctx context.Context, bookingID string) (*domain.Settlement, error) {
	return s.completeClean(ctx, bookingID, nil)
}

// CompleteCleanBy completes a booking on behalf of its owner or an operator.
func (s *BookingService) CompleteCleanBy(ctx context.Context, bookingID, actorID, operatorID string) (*domain.Settlement, error) {
	return s.completeClean(ctx, bookingID, func(b *domain.Booking) error {
		if operatorID != "" {
			return nil
		}
		return permit(actorID, b.OwnerID)
	})
}

// completeClean runs guard first; errNoop from it skips the booking.
func (s *BookingService) completeClean(ctx context.Context, bookingID string, guard func(b *domain.Booking) error) (*domain.Settlement, error) {
	var st settlement
	b, err := s.life.update(ctx, bookingID, func(tx repository.Repos, b *domain.Booking) error {
		if guard != nil {
			if err := guard(b); err != nil {
				return err
			}
		}
		if err := checkTransition(b, domain.BookingStatusCompleted); err != nil {
			return err
		}
		if b.ClaimID != "" {
			return fmt.Errorf("%w: booking has claim %s", ErrInvalidTransition, b.ClaimID)
		}
		st = settlement{}
		if err := s.settler.settleRentalTx(ctx, tx, b, &st); err != nil {
			return err
		}
		released, err := s.settler.releaseHoldsTx(ctx, tx, b)
		if err != nil {
			return err
		}
		st.depositReleased = released
		if err := s.risk.recordCleanBookingTx(ctx, tx, b.RenterID); err != nil {
			return err
		}
		return moveTo(b, domain.BookingStatusCompleted)
	})
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingStatusCompleted {
		return nil, nil
	}
	return s.settled(ctx, b, &st), nil
}

// CompleteWithDamages settles the rental, charges the damage to the deposit
// and runs the waterfall for any shortfall. The renter's class worsens by
// the damage severity.
func (s *BookingService) CompleteWithDamages(ctx context.Context, req DamageRequest) (*domain.Settlement, error) {
	if req.AmountCents <= 0 || req.Description == "" {
		return nil, ErrDamageDetailsRequired
	}
	if !req.Severity.Valid() {
		return nil, ErrInvalidSeverity
	}

	var (
		st    settlement
		claim *domain.Claim
	)
	b, err := s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		if err := checkTransition(b, domain.BookingStatusCompleted); err != nil {
			return err
		}
		st = settlement{}
		if err := s.settler.settleRentalTx(ctx, tx, b, &st); err != nil {
			return err
		}

		owner := []Payee{{UserID: b.OwnerID, AmountCents: req.AmountCents}}
		fromDeposit, err := s.settler.drawDepositTx(ctx, tx, b, req.AmountCents, owner, req.Description)
		if err != nil {
			return err
		}
		st.depositCharged = fromDeposit

		claimRef := b.ClaimID
		if claimRef == "" {
			claimRef = "damage"
		}
		if rest := req.AmountCents - fromDeposit; rest > 0 {
			w, err := s.fund.ExecuteWaterfallTx(ctx, tx, WaterfallRequest{
				BookingID:   b.ID,
				ClaimRef:    claimRef,
				RenterID:    b.RenterID,
				OwnerID:     b.OwnerID,
				ClaimCents:  rest,
				Currency:    b.Price.Currency,
				Description: req.Description,
			}, s.settler.depositDraw(b, req.Description))
			if err != nil {
				return err
			}
			st.waterfall = w
			st.depositCharged += w.Recovered(domain.StepRenterDeposit)
		}

		released, err := s.settler.releaseHoldsTx(ctx, tx, b)
		if err != nil {
			return err
		}
		st.depositReleased = released

		if _, err := s.risk.applyClaimTx(ctx, tx, b.RenterID, req.Severity); err != nil {
			return err
		}
		claim, err = s.disputes.closeDamageTx(ctx, tx, b, req, &st)
		if err != nil {
			return err
		}
		b.ClaimID = claim.ID
		return moveTo(b, domain.BookingStatusCompleted)
	})
	if err != nil {
		return nil, err
	}
	if st.waterfall != nil {
		s.fund.afterWaterfall(ctx, st.waterfall)
	}
	notify(ctx, s.life.notifier, s.logger, claimEvent(domain.EventClaimClosed, claim))
	return s.settled(ctx, b, &st), nil
}

// ChargeFromWallet charges an extra amount against the booking's deposit
// and credits the owner. The rental itself stays covered.
func (s *BookingService) ChargeFromWallet(ctx context.Context, req ChargeBookingRequest) (*BookingCharge, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var out BookingCharge
	_, err := s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		if req.OperatorID == "" {
			if err := permit(req.ActorID, b.OwnerID); err != nil {
				return err
			}
		}
		if !inStatus(b,
			domain.BookingStatusInProgress,
			domain.BookingStatusReturned,
			domain.BookingStatusInspectedGood,
			domain.BookingStatusDamageReported,
		) {
			return fmt.Errorf("%w: cannot charge a booking in %s", ErrInvalidTransition, b.Status)
		}
		room, err := s.settler.depositRoomTx(ctx, tx, b)
		if err != nil {
			return err
		}
		if room < req.AmountCents {
			return fmt.Errorf("%w: deposit covers %d of %d", ErrInsufficientFunds, room, req.AmountCents)
		}
		charged, err := s.settler.drawDepositTx(ctx, tx, b, req.AmountCents,
			[]Payee{{UserID: b.OwnerID, AmountCents: req.AmountCents}}, req.Description)
		if err != nil {
			return err
		}
		out = BookingCharge{ChargedCents: charged, RemainingDepositCents: room - charged}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteClaimWaterfall draws a claim against a returned booking: the
// renter's wallet, the deposit, then the guarantee fund. A booking with an
// open or reviewed claim is settled by the dispute resolver instead.
func (s *BookingService) ExecuteClaimWaterfall(ctx context.Context, req ClaimWaterfallRequest) (*domain.Waterfall, error) {
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var w *domain.Waterfall
	_, err := s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		if !inStatus(b,
			domain.BookingStatusReturned,
			domain.BookingStatusInspectedGood,
			domain.BookingStatusDamageReported,
		) {
			return fmt.Errorf("%w: no claim can be drawn in %s", ErrInvalidTransition, b.Status)
		}
		if b.ClaimID != "" {
			c, err := tx.Claims().GetByID(ctx, b.ClaimID)
			if err != nil {
				return notFound(err, ErrClaimNotFound)
			}
			if !c.Status.IsClosed() {
				return fmt.Errorf("%w: claim %s is %s", ErrClaimInProgress, c.ID, c.Status)
			}
		}
		ref := req.ClaimRef
		if ref == "" {
			ref = "manual"
		}
		var err error
		w, err = s.fund.ExecuteWaterfallTx(ctx, tx, WaterfallRequest{
			BookingID:   b.ID,
			ClaimRef:    ref,
			RenterID:    b.RenterID,
			OwnerID:     b.OwnerID,
			ClaimCents:  req.AmountCents,
			Currency:    b.Price.Currency,
			Description: req.Description,
		}, s.settler.depositDraw(b, req.Description))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.fund.afterWaterfall(ctx, w)
	return w, nil
}

// ──────────────────────────────────────────────
// QUERIES, TIMEOUTS & CARS
// ──────────────────────────────────────────────

// GetBookingStatus returns the booking, read through the projection cache.
func (s *BookingService) GetBookingStatus(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidID
	}
	if cached, err := s.life.cache.Get(ctx, bookingID); err == nil && cached != nil {
		return cached, nil
	}
	b, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	if err := s.life.cache.Set(ctx, b); err != nil {
		s.logger.Warn("failed to cache booking", "booking_id", bookingID, "error", err)
	}
	return b, nil
}

// ExpireStale expires unconfirmed bookings whose hold window passed.
// Re-running it is a no-op for bookings already handled.
func (s *BookingService) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.now()
	stale, err := s.store.Bookings().ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	var expired int
	for _, candidate := range stale {
		b, err := s.life.update(ctx, candidate.ID, func(tx repository.Repos, b *domain.Booking) error {
			if !inStatus(b, domain.BookingStatusPending, domain.BookingStatusPendingPayment) || !b.ExpiresAt.Before(now) {
				return errNoop
			}
			if _, err := s.settler.releaseHoldsTx(ctx, tx, b); err != nil {
				return err
			}
			b.CancelledBy = domain.ActorSystem
			b.CancelReason = "hold_window_expired"
			return moveTo(b, domain.BookingStatusExpired)
		})
		if err != nil {
			s.logger.Error("failed to expire booking", "booking_id", candidate.ID, "error", err)
			continue
		}
		if b.Status == domain.BookingStatusExpired {
			expired++
		}
	}
	metrics.RecordSweep("expired", expired)
	return expired, nil
}

// AutoCompleteReturned completes returned bookings nobody inspected or
// disputed within the grace window.
func (s *BookingService) AutoCompleteReturned(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.policy.Booking.InspectionGrace)
	due, err := s.store.Bookings().ListReturnedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	var completed int
	for _, candidate := range due {
		st, err := s.completeClean(ctx, candidate.ID, func(b *domain.Booking) error {
			if inStatus(b, domain.BookingStatusReturned) && b.ReturnedAt.Before(cutoff) && b.ClaimID == "" {
				return nil
			}
			return errNoop
		})
		if err != nil {
			s.logger.Error("failed to auto-complete booking", "booking_id", candidate.ID, "error", err)
			continue
		}
		if st != nil {
			completed++
		}
	}
	metrics.RecordSweep("auto_completed", completed)
	return completed, nil
}

// CreateCar lists a car for rent.
func (s *BookingService) CreateCar(ctx context.Context, req CreateCarRequest) (*domain.Car, error) {
	if req.OwnerID == "" {
		return nil, ErrInvalidID
	}
	if req.DailyRateCents <= 0 || req.DepositCents < 0 {
		return nil, ErrInvalidAmount
	}
	if req.CancelPolicy == "" {
		req.CancelPolicy = domain.CancelPolicyFlexible
	}
	if !req.CancelPolicy.Valid() {
		return nil, fmt.Errorf("invalid cancellation policy %q", req.CancelPolicy)
	}
	if req.Currency == "" {
		req.Currency = s.policy.FGO.Currency
	}
	car := &domain.Car{
		ID:             uuid.New().String(),
		OwnerID:        req.OwnerID,
		Currency:       req.Currency,
		DailyRateCents: req.DailyRateCents,
		DepositCents:   req.DepositCents,
		AutoApprove:    req.AutoApprove,
		CancelPolicy:   req.CancelPolicy,
		Active:         true,
	}
	if err := s.store.Cars().Create(ctx, car); err != nil {
		return nil, err
	}
	return car, nil
}

// price returns the locked price when a valid token is presented and the
// live quote otherwise.
func (s *BookingService) price(ctx context.Context, req RequestBookingRequest) (domain.PriceBreakdown, error) {
	q := QuoteRequest{CarID: req.CarID, RenterID: req.RenterID, StartAt: req.StartAt, EndAt: req.EndAt}
	if req.PriceLockToken != "" {
		return s.pricing.VerifyPriceLock(req.PriceLockToken, q)
	}
	quote, err := s.pricing.Quote(ctx, q)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	return quote.Price, nil
}

func (s *BookingService) checkCalendar(ctx context.Context, tx repository.Repos, carID string, start, end time.Time) error {
	overlapping, err := tx.Bookings().ListActiveByCar(ctx, carID, start, end)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return fmt.Errorf("%w: %s", ErrBookingOverlap, overlapping[0].ID)
	}
	return nil
}

func (s *BookingService) settled(ctx context.Context, b *domain.Booking, st *settlement) *domain.Settlement {
	statement := s.settler.statement(b, st)
	s.logger.Info("booking settled",
		"booking_id", b.ID,
		"owner_payout_cents", statement.OwnerPayoutCents,
		"platform_fee_cents", statement.PlatformFeeCents,
		"fgo_contribution_cents", statement.FGOContribution,
		"deposit_charged_cents", statement.DepositCharged,
	)
	notify(ctx, s.life.notifier, s.logger, bookingEvent(domain.EventBookingSettled, b, map[string]string{
		"owner_payout_cents": fmt.Sprint(statement.OwnerPayoutCents),
	}))
	return statement
}

// cardAmount is what the card hold must cover for the booking's mode.
func cardAmount(b *domain.Booking) int64 {
	switch b.PaymentMode {
	case domain.PaymentModeCard:
		return b.Price.HoldCents()
	case domain.PaymentModePartialWallet:
		return b.Price.TotalCents
	}
	return 0
}
