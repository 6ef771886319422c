package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"autorent/internal/domain"
	"autorent/internal/service"
)

// BookingHandler handles HTTP requests for cars, quotes and bookings.
type BookingHandler struct {
	bookings *service.BookingService
	pricing  *service.PricingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings *service.BookingService, pricing *service.PricingService) *BookingHandler {
	return &BookingHandler{bookings: bookings, pricing: pricing}
}

// CreateCarRequest is the HTTP request body for listing a car.
type CreateCarRequest struct {
	Currency       string              `json:"currency" binding:"required,len=3"`
	DailyRateCents int64               `json:"daily_rate_cents" binding:"required,gt=0"`
	DepositCents   int64               `json:"deposit_cents" binding:"gte=0"`
	AutoApprove    bool                `json:"auto_approve"`
	CancelPolicy   domain.CancelPolicy `json:"cancel_policy" binding:"omitempty,cancel_policy"`
}

// QuoteRequest is the HTTP request body for a price quote.
type QuoteRequest struct {
	CarID   string    `json:"car_id" binding:"required"`
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required"`
}

// CreateBookingRequest is the HTTP request body for requesting a booking.
type CreateBookingRequest struct {
	CarID          string             `json:"car_id" binding:"required"`
	StartAt        time.Time          `json:"start_at" binding:"required"`
	EndAt          time.Time          `json:"end_at" binding:"required"`
	PaymentMode    domain.PaymentMode `json:"payment_mode" binding:"required,payment_mode"`
	PriceLockToken string             `json:"price_lock_token,omitempty"`
}

// ReasonRequest carries an optional free-text reason.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// InspectionRequest is the owner's post-return inspection.
type InspectionRequest struct {
	Damaged     bool            `json:"damaged"`
	AmountCents int64           `json:"amount_cents" binding:"gte=0"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity" binding:"omitempty,severity"`
	Evidence    []string        `json:"evidence"`
}

// CancelBookingRequest is the HTTP request body for cancelling a booking.
type CancelBookingRequest struct {
	Actor  domain.ActorRole `json:"actor" binding:"required,actor_role"`
	Reason string           `json:"reason"`
	Force  bool             `json:"force"`
}

// DamageSettlementRequest settles a booking with a damage charge.
type DamageSettlementRequest struct {
	AmountCents int64           `json:"amount_cents" binding:"required,gt=0"`
	Description string          `json:"description" binding:"required"`
	Severity    domain.Severity `json:"severity" binding:"required,severity"`
}

// ChargeRequest charges an incidental against the booking's deposit.
type ChargeRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Description string `json:"description" binding:"required"`
}

// ChargeResponse reports what was charged from the deposit.
type ChargeResponse struct {
	ChargedCents          int64 `json:"charged_cents"`
	RemainingDepositCents int64 `json:"remaining_deposit_cents"`
}

// WaterfallRequest runs the claim waterfall for a booking.
type WaterfallRequest struct {
	ClaimRef    string `json:"claim_ref"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Description string `json:"description"`
}

// CreateCar handles POST /v1/cars
func (h *BookingHandler) CreateCar(c *gin.Context) {
	var req CreateCarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	car, err := h.bookings.CreateCar(c.Request.Context(), service.CreateCarRequest{
		OwnerID:        actorID(c),
		Currency:       req.Currency,
		DailyRateCents: req.DailyRateCents,
		DepositCents:   req.DepositCents,
		AutoApprove:    req.AutoApprove,
		CancelPolicy:   req.CancelPolicy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newCarResponse(car))
}

// Quote handles POST /v1/quotes
func (h *BookingHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	q, err := h.pricing.Quote(c.Request.Context(), service.QuoteRequest{
		CarID:    req.CarID,
		RenterID: actorID(c),
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newQuoteResponse(q))
}

// Create handles POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	b, err := h.bookings.RequestBooking(c.Request.Context(), service.RequestBookingRequest{
		CarID:          req.CarID,
		RenterID:       actorID(c),
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		PaymentMode:    req.PaymentMode,
		PriceLockToken: req.PriceLockToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newBookingResponse(b))
}

// Get handles GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.GetBookingStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newBookingResponse(b))
}

// Approve handles POST /v1/bookings/:id/approve
func (h *BookingHandler) Approve(c *gin.Context) {
	h.respondBooking(c)(h.bookings.Approve(c.Request.Context(), c.Param("id"), actorID(c)))
}

// Reject handles POST /v1/bookings/:id/reject
func (h *BookingHandler) Reject(c *gin.Context) {
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)
	h.respondBooking(c)(h.bookings.Reject(c.Request.Context(), c.Param("id"), actorID(c), req.Reason))
}

// Start handles POST /v1/bookings/:id/start
func (h *BookingHandler) Start(c *gin.Context) {
	h.respondBooking(c)(h.bookings.Start(c.Request.Context(), c.Param("id"), actorID(c)))
}

// Return handles POST /v1/bookings/:id/return
func (h *BookingHandler) Return(c *gin.Context) {
	h.respondBooking(c)(h.bookings.Return(c.Request.Context(), c.Param("id"), actorID(c)))
}

// RetryPayment handles POST /v1/bookings/:id/retry-payment
func (h *BookingHandler) RetryPayment(c *gin.Context) {
	h.respondBooking(c)(h.bookings.RetryPayment(c.Request.Context(), c.Param("id"), actorID(c)))
}

// Inspection handles POST /v1/bookings/:id/inspection
func (h *BookingHandler) Inspection(c *gin.Context) {
	var req InspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	h.respondBooking(c)(h.bookings.SubmitInspection(c.Request.Context(), service.InspectionRequest{
		BookingID:   c.Param("id"),
		OwnerID:     actorID(c),
		Damaged:     req.Damaged,
		AmountCents: req.AmountCents,
		Description: req.Description,
		Severity:    req.Severity,
		Evidence:    req.Evidence,
	}))
}

// Cancel handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	actor := actorID(c)
	if req.Actor == domain.ActorAdmin || req.Force {
		if operatorID(c) == "" {
			respondError(c, service.ErrOperatorRequired)
			return
		}
		actor = operatorID(c)
	}

	h.respondBooking(c)(h.bookings.Cancel(c.Request.Context(), service.CancelRequest{
		BookingID: c.Param("id"),
		ActorID:   actor,
		Actor:     req.Actor,
		Reason:    req.Reason,
		Force:     req.Force,
	}))
}

// NoShow handles POST /v1/bookings/:id/no-show
func (h *BookingHandler) NoShow(c *gin.Context) {
	h.respondBooking(c)(h.bookings.ReportNoShow(c.Request.Context(), service.NoShowRequest{
		BookingID:  c.Param("id"),
		ReporterID: actorID(c),
	}))
}

// Complete handles POST /v1/bookings/:id/complete
func (h *BookingHandler) Complete(c *gin.Context) {
	st, err := h.bookings.CompleteCleanBy(c.Request.Context(), c.Param("id"), actorID(c), operatorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newSettlementResponse(st))
}

// CompleteWithDamages handles POST /v1/bookings/:id/complete-with-damages
func (h *BookingHandler) CompleteWithDamages(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req DamageSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	st, err := h.bookings.CompleteWithDamages(c.Request.Context(), service.DamageRequest{
		BookingID:   c.Param("id"),
		AmountCents: req.AmountCents,
		Description: req.Description,
		Severity:    req.Severity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newSettlementResponse(st))
}

// Charge handles POST /v1/bookings/:id/charge
func (h *BookingHandler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	res, err := h.bookings.ChargeFromWallet(c.Request.Context(), service.ChargeBookingRequest{
		BookingID:   c.Param("id"),
		ActorID:     actorID(c),
		OperatorID:  operatorID(c),
		AmountCents: req.AmountCents,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, ChargeResponse{
		ChargedCents:          res.ChargedCents,
		RemainingDepositCents: res.RemainingDepositCents,
	})
}

// Waterfall handles POST /v1/bookings/:id/waterfall
func (h *BookingHandler) Waterfall(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req WaterfallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	w, err := h.bookings.ExecuteClaimWaterfall(c.Request.Context(), service.ClaimWaterfallRequest{
		BookingID:   c.Param("id"),
		ClaimRef:    req.ClaimRef,
		AmountCents: req.AmountCents,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newWaterfallResponse(w))
}

// respondBooking writes the outcome of a call that returns a booking.
func (h *BookingHandler) respondBooking(c *gin.Context) func(*domain.Booking, error) {
	return func(b *domain.Booking, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		respondJSON(c, http.StatusOK, newBookingResponse(b))
	}
}
