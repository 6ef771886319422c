package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"autorent/internal/domain"
	"autorent/internal/repository"
)

// DisputeService files claims, escalates disputes and carries out their
// resolution against the ledger and the fund.
type DisputeService struct {
	store   repository.Store
	life    *lifecycle
	settler *Settler
	fund    *FundService
	risk    *RiskService
	logger  *slog.Logger
	now     func() time.Time
}

// OpenDisputeRequest contains the parameters for opening a dispute.
type OpenDisputeRequest struct {
	BookingID    string
	ActorID      string
	Reason       string
	Evidence     []string
	ClaimedCents int64 // Optional: amount the disputing party asks for
}

// ResolveRequest is an arbitration decision.
type ResolveRequest struct {
	ClaimID           string
	ChargeRenterCents int64
	AtFault           bool
	Notes             string
}

// Resolution is a closed claim and the settlement it produced.
type Resolution struct {
	Claim      *domain.Claim
	Settlement *domain.Settlement
}

type claimInput struct {
	Kind         domain.ClaimKind
	OpenedBy     domain.ActorRole
	Reason       string
	ClaimedCents int64
	Severity     domain.Severity
	Evidence     []string
}

// Open escalates the booking's open claim to review, or files a new one,
// and moves the booking to disputed. Funds stay where they are.
func (s *DisputeService) Open(ctx context.Context, req OpenDisputeRequest) (*domain.Claim, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrDamageDetailsRequired)
	}
	if req.ClaimedCents < 0 {
		return nil, ErrInvalidAmount
	}

	var claim *domain.Claim
	_, err := s.life.update(ctx, req.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		var role domain.ActorRole
		switch req.ActorID {
		case b.RenterID:
			role = domain.ActorRenter
		case b.OwnerID:
			role = domain.ActorOwner
		default:
			return fmt.Errorf("%w: %s", ErrNotPermitted, req.ActorID)
		}
		if err := checkTransition(b, domain.BookingStatusDisputed); err != nil {
			return err
		}

		existing, err := tx.Claims().GetOpenByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Status = domain.ClaimUnderReview
			existing.Evidence = append(existing.Evidence, req.Evidence...)
			existing.UpdatedAt = s.now()
			if err := tx.Claims().Update(ctx, existing); err != nil {
				return err
			}
			claim = existing
		} else {
			claim, err = s.fileClaimTx(ctx, tx, b, claimInput{
				Kind:         domain.ClaimKindDispute,
				OpenedBy:     role,
				Reason:       req.Reason,
				ClaimedCents: req.ClaimedCents,
				Evidence:     req.Evidence,
			})
			if err != nil {
				return err
			}
		}
		b.ClaimID = claim.ID
		return moveTo(b, domain.BookingStatusDisputed)
	})
	if err != nil {
		return nil, err
	}
	notify(ctx, s.life.notifier, s.logger, claimEvent(domain.EventClaimOpened, claim))
	return claim, nil
}

// StartReview moves an open claim under review.
func (s *DisputeService) StartReview(ctx context.Context, claimID string) (*domain.Claim, error) {
	if claimID == "" {
		return nil, ErrInvalidID
	}
	var claim *domain.Claim
	err := s.life.tx.run(ctx, func(tx repository.Repos) error {
		c, err := tx.Claims().GetByID(ctx, claimID)
		if err != nil {
			return notFound(err, ErrClaimNotFound)
		}
		switch {
		case c.Status.IsClosed():
			return ErrClaimClosed
		case c.Status == domain.ClaimUnderReview:
			claim = c
			return nil
		}
		c.Status = domain.ClaimUnderReview
		c.UpdatedAt = s.now()
		if err := tx.Claims().Update(ctx, c); err != nil {
			return err
		}
		claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Get returns a claim.
func (s *DisputeService) Get(ctx context.Context, claimID string) (*domain.Claim, error) {
	if claimID == "" {
		return nil, ErrInvalidID
	}
	c, err := s.store.Claims().GetByID(ctx, claimID)
	if err != nil {
		return nil, notFound(err, ErrClaimNotFound)
	}
	return c, nil
}

// Resolve carries out an arbitration decision in one unit of work: the
// rental goes to the owner, the charge comes out of the deposit with the
// fund covering any excess, and the rest of the deposit is refunded. The
// renter's unlocked balance is never touched. An at-fault renter's class
// worsens by the claim severity.
func (s *DisputeService) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if req.ChargeRenterCents < 0 {
		return nil, ErrInvalidAmount
	}
	claim, err := s.Get(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}

	var (
		st     settlement
		closed *domain.Claim
	)
	b, err := s.life.update(ctx, claim.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		c, err := s.openClaimTx(ctx, tx, req.ClaimID)
		if err != nil {
			return err
		}
		if c.ClaimedCents > 0 && req.ChargeRenterCents > c.ClaimedCents {
			return fmt.Errorf("%w: charge %d exceeds claim %d", ErrInvalidAmount, req.ChargeRenterCents, c.ClaimedCents)
		}
		target, err := closingStatus(b)
		if err != nil {
			return err
		}

		st = settlement{}
		if err := s.settler.settleRentalTx(ctx, tx, b, &st); err != nil {
			return err
		}
		if req.ChargeRenterCents > 0 {
			owner := []Payee{{UserID: b.OwnerID, AmountCents: req.ChargeRenterCents}}
			fromDeposit, err := s.settler.drawDepositTx(ctx, tx, b, req.ChargeRenterCents, owner, c.Reason)
			if err != nil {
				return err
			}
			st.depositCharged = fromDeposit
			if rest := req.ChargeRenterCents - fromDeposit; rest > 0 {
				w, err := s.fund.ExecuteWaterfallTx(ctx, tx, WaterfallRequest{
					BookingID:     b.ID,
					ClaimRef:      c.ID,
					RenterID:      b.RenterID,
					OwnerID:       b.OwnerID,
					ClaimCents:    rest,
					Currency:      b.Price.Currency,
					Description:   c.Reason,
					ExcludeWallet: true,
				}, nil)
				if err != nil {
					return err
				}
				st.waterfall = w
			}
		}
		refund, err := s.settler.releaseHoldsTx(ctx, tx, b)
		if err != nil {
			return err
		}
		st.depositReleased = refund

		var fgoDraw, fromWallet int64
		if w := st.waterfall; w != nil {
			fgoDraw = w.Recovered(domain.StepFGOLiquidity)
			fromWallet = w.Recovered(domain.StepRenterWallet)
		}
		charged := st.depositCharged + fromWallet
		if charged+refund > b.Price.DepositCents+fgoDraw {
			return fmt.Errorf("%w: charge %d and refund %d exceed deposit %d plus fund draw %d",
				ErrIntegrityViolation, charged, refund, b.Price.DepositCents, fgoDraw)
		}

		if req.AtFault {
			severity := c.Severity
			if !severity.Valid() {
				severity = domain.SeverityMinor
			}
			if _, err := s.risk.applyClaimTx(ctx, tx, b.RenterID, severity); err != nil {
				return err
			}
		}

		c.Status = domain.ClaimResolved
		c.AtFault = req.AtFault
		c.ResolutionNotes = req.Notes
		c.RefundedRenterCents = refund
		c.ChargedRenterCents = charged
		c.FGODrawCents = fgoDraw
		if w := st.waterfall; w != nil {
			c.UncoveredCents = w.UncoveredCents
		}
		c.ResolvedAt = s.now()
		c.UpdatedAt = c.ResolvedAt
		if err := tx.Claims().Update(ctx, c); err != nil {
			return err
		}
		closed = c
		return moveTo(b, target)
	})
	if err != nil {
		return nil, err
	}
	return s.closed(ctx, b, closed, &st), nil
}

// Reject closes the claim without a charge: the rental goes to the owner
// and the whole deposit back to the renter.
func (s *DisputeService) Reject(ctx context.Context, claimID, notes string) (*Resolution, error) {
	claim, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}

	var (
		st     settlement
		closed *domain.Claim
	)
	b, err := s.life.update(ctx, claim.BookingID, func(tx repository.Repos, b *domain.Booking) error {
		c, err := s.openClaimTx(ctx, tx, claimID)
		if err != nil {
			return err
		}
		target, err := closingStatus(b)
		if err != nil {
			return err
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

		c.Status = domain.ClaimRejected
		c.ResolutionNotes = notes
		c.RefundedRenterCents = released
		c.ResolvedAt = s.now()
		c.UpdatedAt = c.ResolvedAt
		if err := tx.Claims().Update(ctx, c); err != nil {
			return err
		}
		closed = c
		return moveTo(b, target)
	})
	if err != nil {
		return nil, err
	}
	return s.closed(ctx, b, closed, &st), nil
}

// fileClaimTx creates an open claim for the booking.
func (s *DisputeService) fileClaimTx(ctx context.Context, tx repository.Repos, b *domain.Booking, in claimInput) (*domain.Claim, error) {
	now := s.now()
	c := &domain.Claim{
		ID:           uuid.New().String(),
		BookingID:    b.ID,
		Kind:         in.Kind,
		OpenedBy:     in.OpenedBy,
		Reason:       in.Reason,
		ClaimedCents: in.ClaimedCents,
		Currency:     b.Price.Currency,
		Severity:     in.Severity,
		Evidence:     in.Evidence,
		Status:       domain.ClaimOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Claims().Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// closeDamageTx records the outcome of a damage completion on the
// booking's claim, filing one if the owner never inspected.
func (s *DisputeService) closeDamageTx(ctx context.Context, tx repository.Repos, b *domain.Booking, req DamageRequest, st *settlement) (*domain.Claim, error) {
	var c *domain.Claim
	if b.ClaimID != "" {
		existing, err := s.openClaimTx(ctx, tx, b.ClaimID)
		if err != nil {
			return nil, err
		}
		c = existing
	} else {
		created, err := s.fileClaimTx(ctx, tx, b, claimInput{
			Kind:         domain.ClaimKindDamage,
			OpenedBy:     domain.ActorOwner,
			Reason:       req.Description,
			ClaimedCents: req.AmountCents,
			Severity:     req.Severity,
		})
		if err != nil {
			return nil, err
		}
		c = created
	}

	c.Status = domain.ClaimResolved
	c.AtFault = true
	c.Severity = req.Severity
	c.ChargedRenterCents = st.depositCharged
	c.RefundedRenterCents = st.depositReleased
	if w := st.waterfall; w != nil {
		c.ChargedRenterCents += w.Recovered(domain.StepRenterWallet)
		c.FGODrawCents = w.Recovered(domain.StepFGOLiquidity)
		c.UncoveredCents = w.UncoveredCents
	}
	c.ResolvedAt = s.now()
	c.UpdatedAt = c.ResolvedAt
	if err := tx.Claims().Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *DisputeService) openClaimTx(ctx context.Context, tx repository.Repos, claimID string) (*domain.Claim, error) {
	c, err := tx.Claims().GetByID(ctx, claimID)
	if err != nil {
		return nil, notFound(err, ErrClaimNotFound)
	}
	if c.Status.IsClosed() {
		return nil, ErrClaimClosed
	}
	return c, nil
}

// closed publishes the outcome of a committed resolution.
func (s *DisputeService) closed(ctx context.Context, b *domain.Booking, c *domain.Claim, st *settlement) *Resolution {
	if st.waterfall != nil {
		s.fund.afterWaterfall(ctx, st.waterfall)
	}
	s.logger.Info("claim closed",
		"claim_id", c.ID,
		"booking_id", b.ID,
		"status", c.Status,
		"charged_cents", c.ChargedRenterCents,
		"refunded_cents", c.RefundedRenterCents,
		"fgo_cents", c.FGODrawCents,
	)
	notify(ctx, s.life.notifier, s.logger, claimEvent(domain.EventClaimClosed, c))
	return &Resolution{Claim: c, Settlement: s.settler.statement(b, st)}
}

// closingStatus is where a booking goes once its claim is closed.
func closingStatus(b *domain.Booking) (domain.BookingStatus, error) {
	switch {
	case inStatus(b, domain.BookingStatusDisputed):
		return domain.BookingStatusResolved, nil
	case inStatus(b, domain.BookingStatusDamageReported):
		return domain.BookingStatusCompleted, nil
	}
	return "", fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.Status)
}
