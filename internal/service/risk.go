package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/metrics"
	"autorent/internal/repository"
)

const (
	maxDriverScore      = 100
	scorePerSeverity    = 10
	scorePerCleanRental = 1
)

// classMultipliers holds the fee and guarantee multipliers per class,
// best class first.
var classMultipliers = []struct{ fee, guarantee string }{
	{"0.85", "0.75"},
	{"0.88", "0.80"},
	{"0.92", "0.85"},
	{"0.96", "0.95"},
	{"0.98", "1.00"},
	{"1.00", "1.00"},
	{"1.05", "1.10"},
	{"1.10", "1.20"},
	{"1.15", "1.40"},
	{"1.18", "1.60"},
	{"1.20", "1.80"},
}

// Multipliers is what a risk class does to a booking's fee and deposit.
type Multipliers struct {
	Class     int
	Fee       decimal.Decimal
	Guarantee decimal.Decimal
}

// RiskService keeps the bonus-malus class of each renter.
type RiskService struct {
	store  repository.Store
	tx     *txRunner
	policy config.RiskPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewRiskService creates a new RiskService.
func NewRiskService(store repository.Store, policy config.Policy, logger *slog.Logger) *RiskService {
	return &RiskService{
		store:  store,
		tx:     newTxRunner(store, policy.Retry, logger),
		policy: policy.Risk,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Profile returns a renter's profile, or a fresh base-class profile for a
// renter who has none yet. The fresh profile is not persisted.
func (s *RiskService) Profile(ctx context.Context, userID string) (*domain.DriverRiskProfile, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	p, err := s.store.Risk().GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.newProfile(userID), nil
	}
	return p, err
}

// Multipliers returns the multipliers for a class, clamped to the ladder.
func (s *RiskService) Multipliers(class int) Multipliers {
	class = s.clamp(class)
	idx := min(class, len(classMultipliers)-1)
	m := classMultipliers[idx]
	return Multipliers{
		Class:     class,
		Fee:       decimal.RequireFromString(m.fee),
		Guarantee: decimal.RequireFromString(m.guarantee),
	}
}

// ApplyAnnualImprovement moves every profile that went a full period
// without a claim or class change one class down. Each profile is updated
// in its own unit of work; it returns how many improved.
func (s *RiskService) ApplyAnnualImprovement(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.policy.ImprovementPeriod)
	due, err := s.store.Risk().ListDueForImprovement(ctx, cutoff, s.policy.MinClass, limit)
	if err != nil {
		return 0, err
	}

	var improved int
	for _, candidate := range due {
		var changed bool
		err := s.tx.run(ctx, func(tx repository.Repos) error {
			p, err := tx.Risk().GetProfile(ctx, candidate.UserID)
			if err != nil {
				return err
			}
			now := s.now()
			if p.Class <= s.policy.MinClass || p.LastClaimAt.After(cutoff) || p.LastClassChange.After(cutoff) {
				changed = false
				return nil
			}
			p.Class--
			p.GoodYears++
			p.LastClassChange = now
			p.UpdatedAt = now
			changed = true
			return tx.Risk().SaveProfile(ctx, p)
		})
		if err != nil {
			s.logger.Error("annual class improvement failed", "user_id", candidate.UserID, "error", err)
			continue
		}
		if changed {
			improved++
		}
	}
	metrics.RecordSweep("risk_improvement", improved)
	return improved, nil
}

// profileTx loads a renter's profile inside a unit of work, creating it
// on first use.
func (s *RiskService) profileTx(ctx context.Context, tx repository.Repos, userID string) (*domain.DriverRiskProfile, error) {
	p, err := tx.Risk().GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.newProfile(userID), nil
	}
	return p, err
}

// applyClaimTx worsens the class by the claim's severity.
func (s *RiskService) applyClaimTx(ctx context.Context, tx repository.Repos, userID string, severity domain.Severity) (*domain.DriverRiskProfile, error) {
	if !severity.Valid() {
		return nil, ErrInvalidSeverity
	}
	p, err := s.profileTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	before := p.Class
	p.Class = s.clamp(p.Class + severity.Steps())
	p.DriverScore = max(p.DriverScore-severity.Steps()*scorePerSeverity, 0)
	p.TotalClaims++
	p.LastClaimAt = now
	if p.Class != before {
		p.LastClassChange = now
	}
	p.UpdatedAt = now
	if err := tx.Risk().SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("risk class worsened", "user_id", userID, "from", before, "to", p.Class, "severity", severity)
	return p, nil
}

// recordCleanBookingTx credits a clean completion to the driver score.
func (s *RiskService) recordCleanBookingTx(ctx context.Context, tx repository.Repos, userID string) error {
	p, err := s.profileTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	p.CleanBookings++
	p.DriverScore = min(p.DriverScore+scorePerCleanRental, maxDriverScore)
	p.UpdatedAt = s.now()
	return tx.Risk().SaveProfile(ctx, p)
}

func (s *RiskService) newProfile(userID string) *domain.DriverRiskProfile {
	now := s.now()
	return &domain.DriverRiskProfile{
		UserID:          userID,
		Class:           s.policy.BaseClass,
		DriverScore:     maxDriverScore,
		LastClassChange: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *RiskService) clamp(class int) int {
	return min(max(class, s.policy.MinClass), s.policy.MaxClass)
}
