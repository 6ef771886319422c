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

// DepositDraw charges up to amountCents against a booking's deposit inside
// the caller's unit of work and returns what it charged.
type DepositDraw func(ctx context.Context, tx repository.Repos, amountCents int64) (int64, error)

// WaterfallRequest contains the parameters for a claim draw.
type WaterfallRequest struct {
	BookingID   string
	ClaimRef    string
	RenterID    string
	OwnerID     string
	ClaimCents  int64
	Currency    string
	Description string

	// ExcludeWallet skips the renter's unlocked balance. Arbitrated
	// charges only reach the deposit and the fund.
	ExcludeWallet bool
}

// RebalanceRequest moves money between two pools.
type RebalanceRequest struct {
	From        domain.SubfundType
	To          domain.SubfundType
	AmountCents int64
	OperatorID  string
	Reason      string
}

// FundDiscrepancy is a pool whose balance differs from its movements.
type FundDiscrepancy struct {
	Subfund       domain.SubfundType
	BalanceCents  int64
	MovementCents int64
}

// FundService runs the guarantee fund: contributions, the claim waterfall
// and operator rebalancing.
type FundService struct {
	store    repository.Store
	tx       *txRunner
	ledger   *Ledger
	policy   config.FGOPolicy
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewFundService creates a new FundService.
func NewFundService(store repository.Store, ledger *Ledger, notifier Notifier, policy config.Policy, logger *slog.Logger) *FundService {
	return &FundService{
		store:    store,
		tx:       newTxRunner(store, policy.Retry, logger),
		ledger:   ledger,
		policy:   policy.FGO,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Init creates the pools if they do not exist yet.
func (s *FundService) Init(ctx context.Context) error {
	return s.store.WithTx(ctx, func(tx repository.Repos) error {
		return tx.Funds().EnsureSubfunds(ctx, s.policy.Currency)
	})
}

// ContributionFor returns the contribution owed for a subtotal. It never
// exceeds ceiling, which is the platform's share of the booking.
func (s *FundService) ContributionFor(subtotalCents, ceilingCents int64) int64 {
	return max(min(percentOf(subtotalCents, s.policy.Alpha), ceilingCents), 0)
}

// Contribute pays a booking's contribution into the fund. A booking
// contributes once; later calls return the first contribution.
func (s *FundService) Contribute(ctx context.Context, bookingID string, amountCents int64, currency string) (*domain.Contribution, error) {
	if bookingID == "" {
		return nil, ErrInvalidID
	}
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var c *domain.Contribution
	err := s.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		c, err = s.ContributeTx(ctx, tx, bookingID, amountCents, currency)
		return err
	})
	if err == nil {
		s.publishBalances(ctx)
	}
	return c, err
}

// ContributeTx is Contribute inside the caller's unit of work.
func (s *FundService) ContributeTx(ctx context.Context, tx repository.Repos, bookingID string, amountCents int64, currency string) (*domain.Contribution, error) {
	existing, err := tx.Funds().GetContributionByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if amountCents <= 0 {
		return nil, nil
	}
	if currency != s.policy.Currency {
		return nil, fmt.Errorf("%w: fund %s, contribution %s", ErrCurrencyMismatch, s.policy.Currency, currency)
	}
	if err := tx.Funds().EnsureSubfunds(ctx, s.policy.Currency); err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Contribution{
		ID:          uuid.New().String(),
		BookingID:   bookingID,
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   now,
	}
	if err := tx.Funds().CreateContribution(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}

	capitalization := percentOf(amountCents, s.policy.CapitalizationShare)
	profitability := percentOf(amountCents, s.policy.ProfitabilityShare)
	shares := map[domain.SubfundType]int64{
		domain.SubfundLiquidity:      amountCents - capitalization - profitability,
		domain.SubfundCapitalization: capitalization,
		domain.SubfundProfitability:  profitability,
	}
	for _, t := range domain.AllSubfunds {
		if shares[t] <= 0 {
			continue
		}
		if err := s.move(ctx, tx, t, domain.MovementContribution, shares[t], bookingID, "", ""); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ExecuteWaterfall draws a claim from the renter's wallet, then the fund's
// liquidity pool, and records any uncovered remainder as a loss. The
// deposit step is only available through a booking.
func (s *FundService) ExecuteWaterfall(ctx context.Context, req WaterfallRequest) (*domain.Waterfall, error) {
	if err := validateWaterfall(req); err != nil {
		return nil, err
	}
	var w *domain.Waterfall
	err := s.tx.run(ctx, func(tx repository.Repos) error {
		var err error
		w, err = s.ExecuteWaterfallTx(ctx, tx, req, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterWaterfall(ctx, w)
	return w, nil
}

// ExecuteWaterfallTx runs the waterfall inside the caller's unit of work.
// A waterfall already recorded for the booking and claim is returned as is
// when the amount matches and rejected with ErrWaterfallMismatch otherwise.
func (s *FundService) ExecuteWaterfallTx(ctx context.Context, tx repository.Repos, req WaterfallRequest, deposit DepositDraw) (*domain.Waterfall, error) {
	if err := validateWaterfall(req); err != nil {
		return nil, err
	}
	if prior, err := tx.Funds().GetWaterfall(ctx, req.BookingID, req.ClaimRef); err != nil {
		return nil, err
	} else if prior != nil {
		if prior.ClaimCents != req.ClaimCents {
			return nil, fmt.Errorf("%w: %s drawn for %d, requested %d",
				ErrWaterfallMismatch, req.ClaimRef, prior.ClaimCents, req.ClaimCents)
		}
		return prior, nil
	}

	ref := claimReference(req.BookingID, req.ClaimRef)
	w := &domain.Waterfall{
		ID:          uuid.New().String(),
		BookingID:   req.BookingID,
		ClaimRef:    req.ClaimRef,
		ClaimCents:  req.ClaimCents,
		Currency:    req.Currency,
		Description: req.Description,
		CreatedAt:   s.now(),
	}
	rest := req.ClaimCents

	// Step 1: the renter's unlocked balance.
	if !req.ExcludeWallet {
		drawn, err := s.ledger.chargeAvailableTx(ctx, tx, ChargeRequest{
			UserID:      req.RenterID,
			AmountCents: rest,
			Reference:   ref,
			Description: req.Description,
			Payees:      []Payee{{UserID: req.OwnerID, AmountCents: rest}},
		})
		if err != nil {
			return nil, err
		}
		rest -= drawn
		w.Steps = append(w.Steps, domain.StepRecovery{Step: domain.StepRenterWallet, AmountCents: drawn})
	}

	// Step 2: the deposit held for the booking.
	if rest > 0 && deposit != nil {
		drawn, err := deposit(ctx, tx, rest)
		if err != nil {
			return nil, err
		}
		rest -= drawn
		w.Steps = append(w.Steps, domain.StepRecovery{Step: domain.StepRenterDeposit, AmountCents: drawn})
	}

	// Step 3: the liquidity pool, within the event and monthly caps.
	if rest > 0 {
		step, err := s.drawLiquidityTx(ctx, tx, req, ref, rest)
		if err != nil {
			return nil, err
		}
		rest -= step.AmountCents
		w.Steps = append(w.Steps, step)
	}

	// Step 4: whatever is left waits for manual recovery.
	if rest > 0 {
		loss := &domain.Loss{
			ID:          uuid.New().String(),
			BookingID:   req.BookingID,
			ClaimRef:    req.ClaimRef,
			RenterID:    req.RenterID,
			AmountCents: rest,
			Currency:    req.Currency,
			Status:      domain.LossOpen,
			CreatedAt:   s.now(),
		}
		if err := tx.Funds().CreateLoss(ctx, loss); err != nil {
			return nil, err
		}
		w.Steps = append(w.Steps, domain.StepRecovery{Step: domain.StepUncovered, AmountCents: rest})
	}

	w.UncoveredCents = rest
	w.RecoveredCents = req.ClaimCents - rest
	if err := tx.Funds().CreateWaterfall(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return w, nil
}

func (s *FundService) drawLiquidityTx(ctx context.Context, tx repository.Repos, req WaterfallRequest, ref string, rest int64) (domain.StepRecovery, error) {
	step := domain.StepRecovery{Step: domain.StepFGOLiquidity}
	if req.Currency != s.policy.Currency {
		step.Note = "currency not covered by fund"
		return step, nil
	}

	now := s.now()
	events, err := tx.Funds().CountUserEventsSince(ctx, req.RenterID, quarterStart(now))
	if err != nil {
		return step, err
	}
	if events >= s.policy.PerUserEventsPerQuarter {
		step.Note = fmt.Sprintf("renter reached %d fund events this quarter", events)
		return step, nil
	}

	liquidity, err := tx.Funds().GetSubfundForUpdate(ctx, domain.SubfundLiquidity)
	if errors.Is(err, repository.ErrNotFound) {
		step.Note = "fund not initialized"
		return step, nil
	}
	if err != nil {
		return step, err
	}

	paid, err := tx.Funds().PayoutsSince(ctx, monthStart(now))
	if err != nil {
		return step, err
	}
	monthly := percentOf(liquidity.BalanceCents+paid, s.policy.MonthlyPayoutCapPct) - paid

	amount := min(rest, s.policy.EventCapCents, liquidity.BalanceCents, monthly)
	if amount <= 0 {
		step.Note = "fund cap reached"
		return step, nil
	}
	if amount < rest {
		step.Note = "partial payout"
	}

	if err := s.move(ctx, tx, domain.SubfundLiquidity, domain.MovementPayout, amount, ref, req.RenterID, ""); err != nil {
		return step, err
	}
	if _, err := s.ledger.creditTx(ctx, tx, req.OwnerID, req.Currency, amount, domain.TransactionTransferIn, ref, "guarantee fund payout"); err != nil {
		return step, err
	}
	step.AmountCents = amount
	return step, nil
}

// Rebalance moves money between pools. It is an operator action and never
// happens as a side effect of a claim.
func (s *FundService) Rebalance(ctx context.Context, req RebalanceRequest) error {
	if req.OperatorID == "" {
		return ErrOperatorRequired
	}
	if !req.From.Valid() || !req.To.Valid() || req.From == req.To {
		return ErrInvalidSubfund
	}
	if req.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	err := s.tx.run(ctx, func(tx repository.Repos) error {
		from, err := tx.Funds().GetSubfundForUpdate(ctx, req.From)
		if err != nil {
			return notFound(err, ErrInvalidSubfund)
		}
		if from.BalanceCents < req.AmountCents {
			return fmt.Errorf("%w: %s holds %d", ErrInsufficientFundBalance, req.From, from.BalanceCents)
		}
		ref := "rebalance:" + uuid.New().String()
		if err := s.move(ctx, tx, req.From, domain.MovementRebalanceOut, req.AmountCents, ref, "", req.OperatorID); err != nil {
			return err
		}
		return s.move(ctx, tx, req.To, domain.MovementRebalanceIn, req.AmountCents, ref, "", req.OperatorID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("fund rebalanced", "from", req.From, "to", req.To, "amount_cents", req.AmountCents, "operator_id", req.OperatorID, "reason", req.Reason)
	s.publishBalances(ctx)
	return nil
}

// Status reports the pools, lifetime totals and the loss ratio.
func (s *FundService) Status(ctx context.Context) (*domain.FundStatus, error) {
	pools, err := s.store.Funds().ListSubfunds(ctx)
	if err != nil {
		return nil, err
	}
	contributions, payouts, err := s.store.Funds().Totals(ctx)
	if err != nil {
		return nil, err
	}

	status := &domain.FundStatus{
		Currency:           s.policy.Currency,
		ContributionsCents: contributions,
		PayoutsCents:       payouts,
		Health:             domain.FundHealthy,
	}
	for _, p := range pools {
		status.Subfunds = append(status.Subfunds, *p)
		status.TotalCents += p.BalanceCents
	}
	if contributions > 0 {
		status.LossRatio = float64(payouts) / float64(contributions)
	} else if payouts > 0 {
		status.LossRatio = 1
	}
	switch {
	case status.LossRatio > 1:
		status.Health = domain.FundCritical
	case status.LossRatio > s.policy.LossRatioTarget:
		status.Health = domain.FundWarning
	}
	return status, nil
}

// ReconcileFund compares every pool with the sum of its movements.
func (s *FundService) ReconcileFund(ctx context.Context) ([]FundDiscrepancy, error) {
	pools, err := s.store.Funds().ListSubfunds(ctx)
	if err != nil {
		return nil, err
	}
	var out []FundDiscrepancy
	for _, p := range pools {
		sum, err := s.store.Funds().SumMovements(ctx, p.Type)
		if err != nil {
			return nil, err
		}
		if sum != p.BalanceCents {
			out = append(out, FundDiscrepancy{Subfund: p.Type, BalanceCents: p.BalanceCents, MovementCents: sum})
			s.logger.Error("fund pool does not match its movements", "subfund", p.Type, "balance_cents", p.BalanceCents, "movement_cents", sum)
		}
	}
	return out, nil
}

// ListOpenLosses returns uncovered claim amounts awaiting manual recovery.
func (s *FundService) ListOpenLosses(ctx context.Context) ([]*domain.Loss, error) {
	return s.store.Funds().ListOpenLosses(ctx)
}

// move applies one movement to a pool. Pools never go negative.
func (s *FundService) move(
	ctx context.Context,
	tx repository.Repos,
	t domain.SubfundType,
	kind domain.MovementType,
	amount int64,
	reference, userID, operatorID string,
) error {
	pool, err := tx.Funds().GetSubfundForUpdate(ctx, t)
	if err != nil {
		return err
	}
	pool.BalanceCents += kind.Sign() * amount
	if pool.BalanceCents < 0 {
		return fmt.Errorf("%w: %s would go negative", ErrInsufficientFundBalance, t)
	}
	now := s.now()
	pool.UpdatedAt = now
	if err := tx.Funds().UpdateSubfund(ctx, pool); err != nil {
		return err
	}
	return tx.Funds().CreateMovement(ctx, &domain.FundMovement{
		ID:          uuid.New().String(),
		Subfund:     t,
		Type:        kind,
		AmountCents: amount,
		Reference:   reference,
		UserID:      userID,
		OperatorID:  operatorID,
		CreatedAt:   now,
	})
}

// afterWaterfall records metrics and raises a loss event once committed.
func (s *FundService) afterWaterfall(ctx context.Context, w *domain.Waterfall) {
	for _, step := range w.Steps {
		metrics.RecordWaterfallStep(string(step.Step), step.AmountCents)
	}
	if w.UncoveredCents > 0 {
		notify(ctx, s.notifier, s.logger, domain.Event{
			Type:       domain.EventLossRecorded,
			BookingID:  w.BookingID,
			ClaimID:    w.ClaimRef,
			Data:       map[string]string{"uncovered_cents": fmt.Sprint(w.UncoveredCents)},
			OccurredAt: s.now(),
		})
	}
	s.publishBalances(ctx)
}

func (s *FundService) publishBalances(ctx context.Context) {
	pools, err := s.store.Funds().ListSubfunds(ctx)
	if err != nil {
		return
	}
	for _, p := range pools {
		metrics.SetFundBalance(string(p.Type), p.BalanceCents)
	}
}

func validateWaterfall(req WaterfallRequest) error {
	if req.BookingID == "" || req.ClaimRef == "" || req.RenterID == "" || req.OwnerID == "" {
		return ErrInvalidID
	}
	if req.ClaimCents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func claimReference(bookingID, claimRef string) string {
	return "claim:" + bookingID + ":" + claimRef
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func quarterStart(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}
