package domain

import "time"

// SubfundType names one of the guarantee fund pools.
type SubfundType string

const (
	SubfundLiquidity      SubfundType = "liquidity"
	SubfundCapitalization SubfundType = "capitalization"
	SubfundProfitability  SubfundType = "profitability"
)

// AllSubfunds lists the guarantee fund pools in allocation order.
var AllSubfunds = []SubfundType{SubfundLiquidity, SubfundCapitalization, SubfundProfitability}

// Valid reports whether t is a known pool.
func (t SubfundType) Valid() bool {
	return t == SubfundLiquidity || t == SubfundCapitalization || t == SubfundProfitability
}

// Subfund is one pool of the guarantee fund.
type Subfund struct {
	Type         SubfundType
	Currency     string
	BalanceCents int64
	UpdatedAt    time.Time
}

// Contribution is the share of one booking paid into the fund.
type Contribution struct {
	ID          string
	BookingID   string
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
}

// MovementType is the kind of a fund movement.
type MovementType string

const (
	MovementContribution MovementType = "contribution"
	MovementPayout       MovementType = "payout"
	MovementRebalanceIn  MovementType = "rebalance_in"
	MovementRebalanceOut MovementType = "rebalance_out"
)

// Sign returns +1 for movements that add to a pool and -1 otherwise.
func (t MovementType) Sign() int64 {
	if t == MovementContribution || t == MovementRebalanceIn {
		return 1
	}
	return -1
}

// FundMovement is an immutable change to one pool.
type FundMovement struct {
	ID          string
	Subfund     SubfundType
	Type        MovementType
	AmountCents int64
	Reference   string
	UserID      string
	OperatorID  string
	CreatedAt   time.Time
}

// WaterfallStep names a funding source of the claim waterfall.
type WaterfallStep string

const (
	StepRenterWallet  WaterfallStep = "renter_wallet"
	StepRenterDeposit WaterfallStep = "renter_deposit"
	StepFGOLiquidity  WaterfallStep = "fgo_liquidity"
	StepUncovered     WaterfallStep = "uncovered"
)

// StepRecovery is what one waterfall step recovered.
type StepRecovery struct {
	Step        WaterfallStep
	AmountCents int64
	Note        string
}

// Waterfall is the recorded outcome of one claim draw.
type Waterfall struct {
	ID             string
	BookingID      string
	ClaimRef       string
	ClaimCents     int64
	Currency       string
	Steps          []StepRecovery
	RecoveredCents int64
	UncoveredCents int64
	Description    string
	CreatedAt      time.Time
}

// Recovered returns what the given step recovered.
func (w *Waterfall) Recovered(step WaterfallStep) int64 {
	for _, s := range w.Steps {
		if s.Step == step {
			return s.AmountCents
		}
	}
	return 0
}

// LossStatus tracks manual recovery of an uncovered amount.
type LossStatus string

const (
	LossOpen       LossStatus = "open"
	LossRecovered  LossStatus = "recovered"
	LossWrittenOff LossStatus = "written_off"
)

// Loss is the uncovered remainder of a claim awaiting manual recovery.
type Loss struct {
	ID          string
	BookingID   string
	ClaimRef    string
	RenterID    string
	AmountCents int64
	Currency    string
	Status      LossStatus
	CreatedAt   time.Time
}

// FundHealth classifies the fund by loss ratio.
type FundHealth string

const (
	FundHealthy  FundHealth = "healthy"
	FundWarning  FundHealth = "warning"
	FundCritical FundHealth = "critical"
)

// FundStatus is a read-only snapshot of the fund.
type FundStatus struct {
	Currency           string
	Subfunds           []Subfund
	TotalCents         int64
	ContributionsCents int64
	PayoutsCents       int64
	LossRatio          float64
	Health             FundHealth
}
