package handler

import (
	"time"

	"autorent/internal/domain"
	"autorent/internal/service"
)

// PriceResponse is the money breakdown of a quote or booking.
type PriceResponse struct {
	Currency         string `json:"currency"`
	Days             int    `json:"days"`
	DailyRateCents   int64  `json:"daily_rate_cents"`
	SubtotalCents    int64  `json:"subtotal_cents"`
	ServiceFeeCents  int64  `json:"service_fee_cents"`
	InsuranceCents   int64  `json:"insurance_cents"`
	DepositCents     int64  `json:"deposit_cents"`
	TotalCents       int64  `json:"total_cents"`
	RiskClass        int    `json:"risk_class"`
	DemandMultiplier string `json:"demand_multiplier"`
}

func newPriceResponse(p domain.PriceBreakdown) PriceResponse {
	return PriceResponse{
		Currency:         p.Currency,
		Days:             p.Days,
		DailyRateCents:   p.DailyRateCents,
		SubtotalCents:    p.SubtotalCents,
		ServiceFeeCents:  p.ServiceFeeCents,
		InsuranceCents:   p.InsuranceCents,
		DepositCents:     p.DepositCents,
		TotalCents:       p.TotalCents,
		RiskClass:        p.RiskClass,
		DemandMultiplier: p.DemandMultiplier,
	}
}

// QuoteResponse is the HTTP response for a price quote.
type QuoteResponse struct {
	CarID          string        `json:"car_id"`
	RenterID       string        `json:"renter_id"`
	StartAt        time.Time     `json:"start_at"`
	EndAt          time.Time     `json:"end_at"`
	Price          PriceResponse `json:"price"`
	PriceLockToken string        `json:"price_lock_token"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

func newQuoteResponse(q *service.Quote) QuoteResponse {
	return QuoteResponse{
		CarID:          q.CarID,
		RenterID:       q.RenterID,
		StartAt:        q.StartAt,
		EndAt:          q.EndAt,
		Price:          newPriceResponse(q.Price),
		PriceLockToken: q.PriceLockToken,
		ExpiresAt:      q.ExpiresAt,
	}
}

// BookingResponse is the HTTP representation of a booking.
type BookingResponse struct {
	ID                   string        `json:"id"`
	CarID                string        `json:"car_id"`
	RenterID             string        `json:"renter_id"`
	OwnerID              string        `json:"owner_id"`
	StartAt              time.Time     `json:"start_at"`
	EndAt                time.Time     `json:"end_at"`
	Status               string        `json:"status"`
	Price                PriceResponse `json:"price"`
	PaymentMode          string        `json:"payment_mode"`
	CancelPolicy         string        `json:"cancel_policy"`
	WalletStatus         string        `json:"wallet_status"`
	CardHoldCents        int64         `json:"card_hold_cents,omitempty"`
	InsurancePolicy      string        `json:"insurance_policy,omitempty"`
	ClaimID              string        `json:"claim_id,omitempty"`
	CancelledBy          string        `json:"cancelled_by,omitempty"`
	CancelReason         string        `json:"cancel_reason,omitempty"`
	CancellationFeeCents int64         `json:"cancellation_fee_cents,omitempty"`
	ExpiresAt            *time.Time    `json:"expires_at,omitempty"`
	ReturnedAt           *time.Time    `json:"returned_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func newBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:                   b.ID,
		CarID:                b.CarID,
		RenterID:             b.RenterID,
		OwnerID:              b.OwnerID,
		StartAt:              b.StartAt,
		EndAt:                b.EndAt,
		Status:               string(b.Status),
		Price:                newPriceResponse(b.Price),
		PaymentMode:          string(b.PaymentMode),
		CancelPolicy:         string(b.CancelPolicy),
		WalletStatus:         string(b.WalletStatus),
		CardHoldCents:        b.CardHoldCents,
		InsurancePolicy:      b.InsurancePolicy,
		ClaimID:              b.ClaimID,
		CancelledBy:          string(b.CancelledBy),
		CancelReason:         b.CancelReason,
		CancellationFeeCents: b.CancellationFeeCents,
		ExpiresAt:            optionalTime(b.ExpiresAt),
		ReturnedAt:           optionalTime(b.ReturnedAt),
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CarResponse is the HTTP representation of a car listing.
type CarResponse struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Currency       string `json:"currency"`
	DailyRateCents int64  `json:"daily_rate_cents"`
	DepositCents   int64  `json:"deposit_cents"`
	AutoApprove    bool   `json:"auto_approve"`
	CancelPolicy   string `json:"cancel_policy"`
	Active         bool   `json:"active"`
}

func newCarResponse(c *domain.Car) CarResponse {
	return CarResponse{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		Currency:       c.Currency,
		DailyRateCents: c.DailyRateCents,
		DepositCents:   c.DepositCents,
		AutoApprove:    c.AutoApprove,
		CancelPolicy:   string(c.CancelPolicy),
		Active:         c.Active,
	}
}

// StepResponse is one step of a claim waterfall.
type StepResponse struct {
	Step        string `json:"step"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

// WaterfallResponse is the HTTP representation of a claim waterfall.
type WaterfallResponse struct {
	ID             string         `json:"id"`
	BookingID      string         `json:"booking_id"`
	ClaimRef       string         `json:"claim_ref"`
	ClaimCents     int64          `json:"claim_cents"`
	Currency       string         `json:"currency"`
	Steps          []StepResponse `json:"steps"`
	RecoveredCents int64          `json:"recovered_cents"`
	UncoveredCents int64          `json:"uncovered_cents"`
}

func newWaterfallResponse(w *domain.Waterfall) *WaterfallResponse {
	if w == nil {
		return nil
	}
	steps := make([]StepResponse, 0, len(w.Steps))
	for _, s := range w.Steps {
		steps = append(steps, StepResponse{Step: string(s.Step), AmountCents: s.AmountCents, Note: s.Note})
	}
	return &WaterfallResponse{
		ID:             w.ID,
		BookingID:      w.BookingID,
		ClaimRef:       w.ClaimRef,
		ClaimCents:     w.ClaimCents,
		Currency:       w.Currency,
		Steps:          steps,
		RecoveredCents: w.RecoveredCents,
		UncoveredCents: w.UncoveredCents,
	}
}

// SettlementResponse is the statement returned when a booking is settled.
type SettlementResponse struct {
	ID                 string             `json:"id"`
	BookingID          string             `json:"booking_id"`
	Currency           string             `json:"currency"`
	RentalChargedCents int64              `json:"rental_charged_cents"`
	OwnerPayoutCents   int64              `json:"owner_payout_cents"`
	PlatformFeeCents   int64              `json:"platform_fee_cents"`
	FGOContribution    int64              `json:"fgo_contribution_cents"`
	DepositCents       int64              `json:"deposit_cents"`
	DepositCharged     int64              `json:"deposit_charged_cents"`
	DepositReleased    int64              `json:"deposit_released_cents"`
	Waterfall          *WaterfallResponse `json:"waterfall,omitempty"`
}

func newSettlementResponse(s *domain.Settlement) *SettlementResponse {
	if s == nil {
		return nil
	}
	return &SettlementResponse{
		ID:                 s.ID,
		BookingID:          s.BookingID,
		Currency:           s.Currency,
		RentalChargedCents: s.RentalChargedCents,
		OwnerPayoutCents:   s.OwnerPayoutCents,
		PlatformFeeCents:   s.PlatformFeeCents,
		FGOContribution:    s.FGOContribution,
		DepositCents:       s.DepositCents,
		DepositCharged:     s.DepositCharged,
		DepositReleased:    s.DepositReleased,
		Waterfall:          newWaterfallResponse(s.Waterfall),
	}
}

// ClaimResponse is the HTTP representation of a claim or dispute.
type ClaimResponse struct {
	ID                  string     `json:"id"`
	BookingID           string     `json:"booking_id"`
	Kind                string     `json:"kind"`
	OpenedBy            string     `json:"opened_by"`
	Reason              string     `json:"reason"`
	ClaimedCents        int64      `json:"claimed_cents"`
	Currency            string     `json:"currency"`
	Severity            string     `json:"severity,omitempty"`
	Evidence            []string   `json:"evidence"`
	Status              string     `json:"status"`
	ChargedRenterCents  int64      `json:"charged_renter_cents"`
	RefundedRenterCents int64      `json:"refunded_renter_cents"`
	FGODrawCents        int64      `json:"fgo_draw_cents"`
	UncoveredCents      int64      `json:"uncovered_cents"`
	ResolutionNotes     string     `json:"resolution_notes,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
}

func newClaimResponse(c *domain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:                  c.ID,
		BookingID:           c.BookingID,
		Kind:                string(c.Kind),
		OpenedBy:            string(c.OpenedBy),
		Reason:              c.Reason,
		ClaimedCents:        c.ClaimedCents,
		Currency:            c.Currency,
		Severity:            string(c.Severity),
		Evidence:            c.Evidence,
		Status:              string(c.Status),
		ChargedRenterCents:  c.ChargedRenterCents,
		RefundedRenterCents: c.RefundedRenterCents,
		FGODrawCents:        c.FGODrawCents,
		UncoveredCents:      c.UncoveredCents,
		ResolutionNotes:     c.ResolutionNotes,
		ResolvedAt:          optionalTime(c.ResolvedAt),
	}
}

// AccountResponse is the HTTP representation of a wallet balance.
type AccountResponse struct {
	UserID         string `json:"user_id"`
	Currency       string `json:"currency"`
	BalanceCents   int64  `json:"balance_cents"`
	LockedCents    int64  `json:"locked_cents"`
	AvailableCents int64  `json:"available_cents"`
	Frozen         bool   `json:"frozen"`
	FrozenReason   string `json:"frozen_reason,omitempty"`
}

func newAccountResponse(a *domain.WalletAccount) AccountResponse {
	return AccountResponse{
		UserID:         a.UserID,
		Currency:       a.Currency,
		BalanceCents:   a.BalanceCents,
		LockedCents:    a.LockedCents,
		AvailableCents: a.AvailableCents(),
		Frozen:         a.Frozen,
		FrozenReason:   a.FrozenReason,
	}
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Reference   string    `json:"reference,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newTransactionResponse(t *domain.WalletTransaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Status:      string(t.Status),
		Reference:   t.Reference,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

// SubfundResponse is one guarantee fund pool.
type SubfundResponse struct {
	Type         string `json:"type"`
	BalanceCents int64  `json:"balance_cents"`
}

// FundStatusResponse is the HTTP representation of the guarantee fund.
type FundStatusResponse struct {
	Currency           string            `json:"currency"`
	Subfunds           []SubfundResponse `json:"subfunds"`
	TotalCents         int64             `json:"total_cents"`
	ContributionsCents int64             `json:"contributions_cents"`
	PayoutsCents       int64             `json:"payouts_cents"`
	LossRatio          float64           `json:"loss_ratio"`
	Health             string            `json:"health"`
}

func newFundStatusResponse(s *domain.FundStatus) FundStatusResponse {
	subfunds := make([]SubfundResponse, 0, len(s.Subfunds))
	for _, sf := range s.Subfunds {
		subfunds = append(subfunds, SubfundResponse{Type: string(sf.Type), BalanceCents: sf.BalanceCents})
	}
	return FundStatusResponse{
		Currency:           s.Currency,
		Subfunds:           subfunds,
		TotalCents:         s.TotalCents,
		ContributionsCents: s.ContributionsCents,
		PayoutsCents:       s.PayoutsCents,
		LossRatio:          s.LossRatio,
		Health:             string(s.Health),
	}
}
