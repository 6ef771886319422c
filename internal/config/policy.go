package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Policy is the business configuration snapshot injected into services.
type Policy struct {
	Booking      BookingPolicy      `mapstructure:"booking"`
	Cancellation CancellationPolicy `mapstructure:"cancellation"`
	Owner        OwnerPolicy        `mapstructure:"owner"`
	Pricing      PricingPolicy      `mapstructure:"pricing"`
	Risk         RiskPolicy         `mapstructure:"risk"`
	FGO          FGOPolicy          `mapstructure:"fgo"`
	Retry        RetryPolicy        `mapstructure:"retry"`
	Sweep        SweepPolicy        `mapstructure:"sweep"`
}

// BookingPolicy holds lifecycle timeouts.
type BookingPolicy struct {
	HoldWindow       time.Duration `mapstructure:"hold_window"`
	InspectionGrace  time.Duration `mapstructure:"inspection_grace"`
	PlatformWalletID string        `mapstructure:"platform_wallet_id"`
	MaxRentalDays    int           `mapstructure:"max_rental_days"`
}

// CancellationTier charges FeePct of the subtotal when the booking is
// cancelled at least MinNotice before its start.
type CancellationTier struct {
	MinNotice time.Duration `mapstructure:"min_notice"`
	FeePct    float64       `mapstructure:"fee_pct"`
}

// CancellationPolicy lists tiers per policy, most notice first. The last
// tier applies when no other matches.
type CancellationPolicy struct {
	Flexible []CancellationTier `mapstructure:"flexible"`
	Moderate []CancellationTier `mapstructure:"moderate"`
	Strict   []CancellationTier `mapstructure:"strict"`
}

// OwnerPolicy holds penalties for owner cancellations.
type OwnerPolicy struct {
	PenaltyVisibility   float64       `mapstructure:"penalty_visibility"`
	PenaltyDuration     time.Duration `mapstructure:"penalty_duration"`
	SuspensionThreshold int           `mapstructure:"suspension_threshold"`
	SuspensionWindow    time.Duration `mapstructure:"suspension_window"`
}

// DemandTier applies Multiplier when the booked-day ratio reaches MinRatio.
type DemandTier struct {
	MinRatio   float64 `mapstructure:"min_ratio"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// PricingPolicy holds quote parameters.
type PricingPolicy struct {
	ServiceFeePct       float64       `mapstructure:"service_fee_pct"`
	InsuranceDailyCents int64         `mapstructure:"insurance_daily_cents"`
	DemandWindow        time.Duration `mapstructure:"demand_window"`
	DemandTiers         []DemandTier  `mapstructure:"demand_tiers"`
	ShortLeadWindow     time.Duration `mapstructure:"short_lead_window"`
	ShortLeadSurcharge  float64       `mapstructure:"short_lead_surcharge"`
	MaxMultiplier       float64       `mapstructure:"max_multiplier"`
	PriceLockTTL        time.Duration `mapstructure:"price_lock_ttl"`
	PriceLockSecret     string        `mapstructure:"price_lock_secret"`
}

// RiskPolicy bounds the bonus-malus ladder.
type RiskPolicy struct {
	BaseClass         int           `mapstructure:"base_class"`
	MinClass          int           `mapstructure:"min_class"`
	MaxClass          int           `mapstructure:"max_class"`
	ImprovementPeriod time.Duration `mapstructure:"improvement_period"`
}

// FGOPolicy holds guarantee fund parameters.
type FGOPolicy struct {
	Currency                string  `mapstructure:"currency"`
	Alpha                   float64 `mapstructure:"alpha"`
	AlphaMin                float64 `mapstructure:"alpha_min"`
	AlphaMax                float64 `mapstructure:"alpha_max"`
	EventCapCents           int64   `mapstructure:"event_cap_cents"`
	PerUserEventsPerQuarter int     `mapstructure:"per_user_events_per_quarter"`
	MonthlyPayoutCapPct     float64 `mapstructure:"monthly_payout_cap_pct"`
	LossRatioTarget         float64 `mapstructure:"loss_ratio_target"`
	LiquidityShare          float64 `mapstructure:"liquidity_share"`
	CapitalizationShare     float64 `mapstructure:"capitalization_share"`
	ProfitabilityShare      float64 `mapstructure:"profitability_share"`
}

// RetryPolicy holds the backoff used around external collaborators.
type RetryPolicy struct {
	ProviderTimeout   time.Duration `mapstructure:"provider_timeout"`
	ProviderAttempts  int           `mapstructure:"provider_attempts"`
	ProviderBackoff   time.Duration `mapstructure:"provider_backoff"`
	InsuranceAttempts int           `mapstructure:"insurance_attempts"`
	InsuranceBackoff  time.Duration `mapstructure:"insurance_backoff"`
	ConflictAttempts  int           `mapstructure:"conflict_attempts"`
	ConflictBackoff   time.Duration `mapstructure:"conflict_backoff"`
	QueueMaxAttempts  int           `mapstructure:"queue_max_attempts"`
	QueueBackoff      time.Duration `mapstructure:"queue_backoff"`
}

// SweepPolicy drives the periodic timeout sweep.
type SweepPolicy struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		Booking: BookingPolicy{
			HoldWindow:       24 * time.Hour,
			InspectionGrace:  48 * time.Hour,
			PlatformWalletID: "platform",
			MaxRentalDays:    90,
		},
		Cancellation: CancellationPolicy{
			Flexible: []CancellationTier{
				{MinNotice: 24 * time.Hour, FeePct: 0},
				{MinNotice: 0, FeePct: 0.10},
			},
			Moderate: []CancellationTier{
				{MinNotice: 72 * time.Hour, FeePct: 0},
				{MinNotice: 24 * time.Hour, FeePct: 0.25},
				{MinNotice: 0, FeePct: 0.50},
			},
			Strict: []CancellationTier{
				{MinNotice: 168 * time.Hour, FeePct: 0.10},
				{MinNotice: 48 * time.Hour, FeePct: 0.50},
				{MinNotice: 0, FeePct: 1},
			},
		},
		Owner: OwnerPolicy{
			PenaltyVisibility:   0.9,
			PenaltyDuration:     30 * 24 * time.Hour,
			SuspensionThreshold: 3,
			SuspensionWindow:    90 * 24 * time.Hour,
		},
		Pricing: PricingPolicy{
			ServiceFeePct:       0.12,
			InsuranceDailyCents: 1500,
			DemandWindow:        30 * 24 * time.Hour,
			DemandTiers: []DemandTier{
				{MinRatio: 0.9, Multiplier: 1.35},
				{MinRatio: 0.7, Multiplier: 1.20},
				{MinRatio: 0.5, Multiplier: 1.10},
			},
			ShortLeadWindow:    48 * time.Hour,
			ShortLeadSurcharge: 0.05,
			MaxMultiplier:      1.35,
			PriceLockTTL:       15 * time.Minute,
			PriceLockSecret:    "dev-price-lock-secret",
		},
		Risk: RiskPolicy{
			BaseClass:         5,
			MinClass:          0,
			MaxClass:          10,
			ImprovementPeriod: 365 * 24 * time.Hour,
		},
		FGO: FGOPolicy{
			Currency:                "USD",
			Alpha:                   0.05,
			AlphaMin:                0.02,
			AlphaMax:                0.10,
			EventCapCents:           80000,
			PerUserEventsPerQuarter: 2,
			MonthlyPayoutCapPct:     0.08,
			LossRatioTarget:         0.80,
			LiquidityShare:          0.70,
			CapitalizationShare:     0.20,
			ProfitabilityShare:      0.10,
		},
		Retry: RetryPolicy{
			ProviderTimeout:   5 * time.Second,
			ProviderAttempts:  3,
			ProviderBackoff:   200 * time.Millisecond,
			InsuranceAttempts: 3,
			InsuranceBackoff:  time.Second,
			ConflictAttempts:  4,
			ConflictBackoff:   20 * time.Millisecond,
			QueueMaxAttempts:  8,
			QueueBackoff:      30 * time.Second,
		},
		Sweep: SweepPolicy{
			Interval:  time.Minute,
			BatchSize: 100,
			LockTTL:   2 * time.Minute,
		},
	}
}

// LoadPolicy overlays the YAML, JSON or TOML file at path onto the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}
	if err := v.Unmarshal(&policy); err != nil {
		return policy, fmt.Errorf("decode policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// Validate rejects policies the services cannot run with.
func (p Policy) Validate() error {
	if p.FGO.Alpha < p.FGO.AlphaMin || p.FGO.Alpha > p.FGO.AlphaMax {
		return fmt.Errorf("fgo alpha %.4f outside [%.4f, %.4f]", p.FGO.Alpha, p.FGO.AlphaMin, p.FGO.AlphaMax)
	}
	shares := p.FGO.LiquidityShare + p.FGO.CapitalizationShare + p.FGO.ProfitabilityShare
	if shares < 0.999 || shares > 1.001 {
		return fmt.Errorf("fgo allocation shares sum to %.4f, want 1", shares)
	}
	if p.Risk.MinClass > p.Risk.BaseClass || p.Risk.BaseClass > p.Risk.MaxClass {
		return fmt.Errorf("risk base class %d outside [%d, %d]", p.Risk.BaseClass, p.Risk.MinClass, p.Risk.MaxClass)
	}
	if p.Pricing.PriceLockSecret == "" {
		return fmt.Errorf("price lock secret is empty")
	}
	return nil
}
