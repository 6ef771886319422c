package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// Settler moves a booking's money between the renter's funding sources,
// the owner, the platform wallet and the guarantee fund. Every method runs
// inside the caller's unit of work and mutates the booking in place; the
// caller persists it.
//
// Funding sources by payment mode:
//
//	wallet          lock = total + deposit
//	partial_wallet  lock = deposit, card hold = total
//	card            card hold = total + deposit
//
// Card draws only advance CardCapturedCents; the provider capture happens
// once the booking reaches a terminal state.
type Settler struct {
	ledger     *Ledger
	fund       *FundService
	platformID string
	now        func() time.Time
}

func newSettler(ledger *Ledger, fund *FundService, platformID string) *Settler {
	return &Settler{
		ledger:     ledger,
		fund:       fund,
		platformID: platformID,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// settlement accumulates the figures of one booking's statement.
type settlement struct {
	rentalCharged   int64
	ownerPayout     int64
	platformFee     int64
	contribution    int64
	depositCharged  int64
	depositReleased int64
	waterfall       *domain.Waterfall
}

// settleRentalTx charges the rental total once and splits it between the
// owner, the platform and the fund.
func (s *Settler) settleRentalTx(ctx context.Context, tx repository.Repos, b *domain.Booking, out *settlement) error {
	if !b.RentalSettledAt.IsZero() {
		return nil
	}
	p := b.Price
	platformShare := p.ServiceFeeCents + p.InsuranceCents
	contribution := s.fund.ContributionFor(p.SubtotalCents, platformShare)

	charged, err := s.drawRentalTx(ctx, tx, b, p.TotalCents, []Payee{
		{UserID: b.OwnerID, AmountCents: p.SubtotalCents},
		{UserID: s.platformID, AmountCents: platformShare - contribution},
	}, "rental settlement")
	if err != nil {
		return err
	}
	if charged < p.TotalCents {
		return fmt.Errorf("%w: rental hold covers %d of %d", ErrInsufficientFunds, charged, p.TotalCents)
	}
	if _, err := s.fund.ContributeTx(ctx, tx, b.ID, contribution, p.Currency); err != nil {
		return err
	}

	b.RentalSettledAt = s.now()
	out.rentalCharged = charged
	out.ownerPayout = p.SubtotalCents
	out.platformFee = platformShare - contribution
	out.contribution = contribution
	return nil
}

// drawRentalTx charges from the source that funds the rental.
func (s *Settler) drawRentalTx(ctx context.Context, tx repository.Repos, b *domain.Booking, amount int64, payees []Payee, description string) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	if b.PaymentMode == domain.PaymentModeWallet {
		res, err := s.ledger.chargeFromLockedTx(ctx, tx, ChargeRequest{
			UserID:      b.RenterID,
			AmountCents: amount,
			Reference:   b.WalletLockRef,
			Description: description,
			Payees:      payees,
		})
		if err != nil {
			return 0, err
		}
		b.WalletStatus = domain.WalletStatusCharged
		return res.ChargedCents, nil
	}
	return s.captureTx(ctx, tx, b, amount, b.CardHoldCents-b.CardCapturedCents, payees, description)
}

// drawDepositTx charges from the deposit, leaving room for a rental that
// is not settled yet.
func (s *Settler) drawDepositTx(ctx context.Context, tx repository.Repos, b *domain.Booking, amount int64, payees []Payee, description string) (int64, error) {
	room, err := s.depositRoomTx(ctx, tx, b)
	if err != nil || room <= 0 || amount <= 0 {
		return 0, err
	}
	amount = min(amount, room)

	if b.PaymentMode == domain.PaymentModeCard {
		return s.captureTx(ctx, tx, b, amount, room, payees, description)
	}
	res, err := s.ledger.chargeFromLockedTx(ctx, tx, ChargeRequest{
		UserID:      b.RenterID,
		AmountCents: amount,
		Reference:   b.WalletLockRef,
		Description: description,
		Payees:      payees,
	})
	if err != nil {
		return 0, err
	}
	b.WalletStatus = domain.WalletStatusCharged
	return res.ChargedCents, nil
}

// depositRoomTx returns how much of the deposit can still be charged.
func (s *Settler) depositRoomTx(ctx context.Context, tx repository.Repos, b *domain.Booking) (int64, error) {
	var reserved int64
	if b.RentalSettledAt.IsZero() && b.PaymentMode != domain.PaymentModePartialWallet {
		reserved = b.Price.TotalCents
	}

	if b.PaymentMode == domain.PaymentModeCard {
		return max(b.CardHoldCents-b.CardCapturedCents-reserved, 0), nil
	}
	if b.WalletLockRef == "" {
		return 0, nil
	}
	lock, err := tx.Wallets().GetLock(ctx, b.RenterID, b.WalletLockRef)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if lock.Status != domain.LockActive {
		return 0, nil
	}
	return max(lock.RemainingCents-reserved, 0), nil
}

// captureTx marks part of the card hold as captured and credits the payees.
func (s *Settler) captureTx(ctx context.Context, tx repository.Repos, b *domain.Booking, amount, room int64, payees []Payee, description string) (int64, error) {
	if b.CardHoldID == "" {
		return 0, nil
	}
	amount = min(amount, room)
	if amount <= 0 {
		return 0, nil
	}
	b.CardCapturedCents += amount
	ref := domain.RentalLockRef(b.ID)
	if err := s.ledger.pay(ctx, tx, b.Price.Currency, amount, payees, ref, description); err != nil {
		return 0, err
	}
	return amount, nil
}

// depositDraw binds drawDepositTx to a booking for the claim waterfall.
func (s *Settler) depositDraw(b *domain.Booking, description string) DepositDraw {
	return func(ctx context.Context, tx repository.Repos, amountCents int64) (int64, error) {
		return s.drawDepositTx(ctx, tx, b, amountCents, []Payee{{UserID: b.OwnerID, AmountCents: amountCents}}, description)
	}
}

// releaseHoldsTx returns whatever is still locked to the renter. The card
// hold is finalized by the caller after commit.
func (s *Settler) releaseHoldsTx(ctx context.Context, tx repository.Repos, b *domain.Booking) (int64, error) {
	if !b.FundsReleasedAt.IsZero() {
		return 0, nil
	}
	var released int64
	if b.WalletLockRef != "" && b.WalletStatus != domain.WalletStatusNone {
		n, err := s.ledger.unlockTx(ctx, tx, b.RenterID, b.WalletLockRef)
		if err != nil && !errors.Is(err, ErrLockNotFound) {
			return 0, err
		}
		released = n
		if b.WalletStatus == domain.WalletStatusLocked {
			b.WalletStatus = domain.WalletStatusReleased
		}
	}
	if b.PaymentMode == domain.PaymentModeCard {
		released += max(b.CardHoldCents-b.CardCapturedCents, 0)
	}
	b.FundsReleasedAt = s.now()
	return released, nil
}

// statement turns the accumulated figures into a Settlement.
func (s *Settler) statement(b *domain.Booking, st *settlement) *domain.Settlement {
	return &domain.Settlement{
		ID:                 uuid.New().String(),
		BookingID:          b.ID,
		RenterID:           b.RenterID,
		OwnerID:            b.OwnerID,
		Currency:           b.Price.Currency,
		RentalChargedCents: st.rentalCharged,
		OwnerPayoutCents:   st.ownerPayout,
		PlatformFeeCents:   st.platformFee,
		FGOContribution:    st.contribution,
		DepositCents:       b.Price.DepositCents,
		DepositCharged:     st.depositCharged,
		DepositReleased:    st.depositReleased,
		Waterfall:          st.waterfall,
		CreatedAt:          s.now(),
	}
}
