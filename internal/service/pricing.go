package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"autorent/internal/config"
	"autorent/internal/domain"
	"autorent/internal/repository"
)

const (
	priceLockIssuer   = "autorent"
	priceLockAudience = "booking"
)

var one = decimal.NewFromInt(1)

// PricingService quotes bookings and signs price locks.
type PricingService struct {
	store   repository.Store
	risk    *RiskService
	policy  config.PricingPolicy
	maxDays int
	now     func() time.Time
}

// NewPricingService creates a new PricingService.
func NewPricingService(store repository.Store, risk *RiskService, policy config.Policy) *PricingService {
	return &PricingService{
		store:   store,
		risk:    risk,
		policy:  policy.Pricing,
		maxDays: policy.Booking.MaxRentalDays,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// QuoteRequest contains the parameters for a quote.
type QuoteRequest struct {
	CarID    string
	RenterID string
	StartAt  time.Time
	EndAt    time.Time
}

// Quote is a priced booking and the token that locks the price.
type Quote struct {
	CarID          string
	RenterID       string
	StartAt        time.Time
	EndAt          time.Time
	Price          domain.PriceBreakdown
	PriceLockToken string
	ExpiresAt      time.Time
}

type priceSnapshot struct {
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

type priceLockClaims struct {
	CarID    string        `json:"car_id"`
	RenterID string        `json:"renter_id"`
	StartAt  int64         `json:"start_at"`
	EndAt    int64         `json:"end_at"`
	Price    priceSnapshot `json:"price"`
	jwt.RegisteredClaims
}

// Quote prices a booking with the renter's class and the car's current demand.
func (s *PricingService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.CarID == "" || req.RenterID == "" {
		return nil, ErrInvalidID
	}
	days, err := s.days(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	car, err := s.store.Cars().GetByID(ctx, req.CarID)
	if err != nil {
		return nil, notFound(err, ErrCarNotFound)
	}
	if !car.Active {
		return nil, ErrCarUnavailable
	}

	profile, err := s.risk.Profile(ctx, req.RenterID)
	if err != nil {
		return nil, err
	}
	demand, err := s.demandMultiplier(ctx, car.ID, req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	price := s.breakdown(car, days, s.risk.Multipliers(profile.Class), demand)

	now := s.now()
	expiresAt := now.Add(s.policy.PriceLockTTL)
	token, err := s.sign(req, price, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return &Quote{
		CarID:          car.ID,
		RenterID:       req.RenterID,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		Price:          price,
		PriceLockToken: token,
		ExpiresAt:      expiresAt,
	}, nil
}

// VerifyPriceLock returns the snapshotted price if the token is valid,
// unexpired and was issued for this car, renter and range.
func (s *PricingService) VerifyPriceLock(token string, req QuoteRequest) (domain.PriceBreakdown, error) {
	claims := &priceLockClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(s.policy.PriceLockSecret), nil
		},
		jwt.WithIssuer(priceLockIssuer),
		jwt.WithAudience(priceLockAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("%w: %v", ErrInvalidPriceLock, err)
	}

	if claims.CarID != req.CarID ||
		claims.RenterID != req.RenterID ||
		claims.StartAt != req.StartAt.Unix() ||
		claims.EndAt != req.EndAt.Unix() {
		return domain.PriceBreakdown{}, ErrPriceLockMismatch
	}

	p := claims.Price
	return domain.PriceBreakdown{
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
	}, nil
}

// days counts started 24h periods in [start, end).
func (s *PricingService) days(start, end time.Time) (int, error) {
	if start.IsZero() || !end.After(start) {
		return 0, ErrInvalidRange
	}
	d := end.Sub(start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	if s.maxDays > 0 && days > s.maxDays {
		return 0, fmt.Errorf("%w: longer than %d days", ErrInvalidRange, s.maxDays)
	}
	return days, nil
}

func (s *PricingService) breakdown(car *domain.Car, days int, m Multipliers, demand decimal.Decimal) domain.PriceBreakdown {
	rate := decimal.NewFromInt(car.DailyRateCents).Mul(demand).Round(0).IntPart()
	subtotal := rate * int64(days)
	fee := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromFloat(s.policy.ServiceFeePct)).
		Mul(m.Fee).
		Round(0).IntPart()
	insurance := s.policy.InsuranceDailyCents * int64(days)
	deposit := decimal.NewFromInt(car.DepositCents).Mul(m.Guarantee).Round(0).IntPart()

	return domain.PriceBreakdown{
		Currency:         car.Currency,
		Days:             days,
		DailyRateCents:   rate,
		SubtotalCents:    subtotal,
		ServiceFeeCents:  fee,
		InsuranceCents:   insurance,
		DepositCents:     deposit,
		TotalCents:       subtotal + fee + insurance,
		RiskClass:        m.Class,
		DemandMultiplier: demand.StringFixed(2),
	}
}

// demandMultiplier derives the price multiplier from the share of booked
// days in the window centred on the requested range, plus a surcharge for
// short-notice starts. The result never exceeds MaxMultiplier.
func (s *PricingService) demandMultiplier(ctx context.Context, carID string, start, end time.Time) (decimal.Decimal, error) {
	window := s.policy.DemandWindow
	if window <= 0 {
		return one, nil
	}
	mid := start.Add(end.Sub(start) / 2)
	from, to := mid.Add(-window/2), mid.Add(window/2)

	active, err := s.store.Bookings().ListActiveByCar(ctx, carID, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	var booked time.Duration
	for _, b := range active {
		lo, hi := b.StartAt, b.EndAt
		if lo.Before(from) {
			lo = from
		}
		if hi.After(to) {
			hi = to
		}
		if hi.After(lo) {
			booked += hi.Sub(lo)
		}
	}
	ratio := float64(booked) / float64(window)

	tiers := append([]config.DemandTier(nil), s.policy.DemandTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinRatio > tiers[j].MinRatio })

	multiplier := one
	for _, t := range tiers {
		if ratio >= t.MinRatio {
			multiplier = decimal.NewFromFloat(t.Multiplier)
			break
		}
	}

	if lead := start.Sub(s.now()); lead < s.policy.ShortLeadWindow {
		multiplier = multiplier.Mul(one.Add(decimal.NewFromFloat(s.policy.ShortLeadSurcharge)))
	}

	if s.policy.MaxMultiplier > 0 {
		multiplier = decimal.Min(multiplier, decimal.NewFromFloat(s.policy.MaxMultiplier))
	}
	return multiplier, nil
}

func (s *PricingService) sign(req QuoteRequest, p domain.PriceBreakdown, now, expiresAt time.Time) (string, error) {
	if s.policy.PriceLockSecret == "" {
		return "", errors.New("price lock secret cannot be empty")
	}
	claims := &priceLockClaims{
		CarID:    req.CarID,
		RenterID: req.RenterID,
		StartAt:  req.StartAt.Unix(),
		EndAt:    req.EndAt.Unix(),
		Price: priceSnapshot{
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
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    priceLockIssuer,
			Audience:  []string{priceLockAudience},
			Subject:   req.RenterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.policy.PriceLockSecret))
}

// percentOf returns pct of amount rounded to the nearest cent.
func percentOf(amount int64, pct float64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(pct)).Round(0).IntPart()
}
