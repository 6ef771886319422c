package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autorent/internal/domain"
	"autorent/internal/service"
)

// FundHandler handles HTTP requests for the guarantee fund.
type FundHandler struct {
	fund *service.FundService
}

// NewFundHandler creates a new FundHandler.
func NewFundHandler(fund *service.FundService) *FundHandler {
	return &FundHandler{fund: fund}
}

// RebalanceRequest moves money between guarantee fund pools.
type RebalanceRequest struct {
	From        domain.SubfundType `json:"from" binding:"required,subfund"`
	To          domain.SubfundType `json:"to" binding:"required,subfund"`
	AmountCents int64              `json:"amount_cents" binding:"required,gt=0"`
	Reason      string             `json:"reason"`
}

// LossResponse is an uncovered claim remainder awaiting recovery.
type LossResponse struct {
	ID          string `json:"id"`
	BookingID   string `json:"booking_id"`
	ClaimRef    string `json:"claim_ref"`
	RenterID    string `json:"renter_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// Status handles GET /v1/fgo
func (h *FundHandler) Status(c *gin.Context) {
	st, err := h.fund.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newFundStatusResponse(st))
}

// Losses handles GET /v1/fgo/losses
func (h *FundHandler) Losses(c *gin.Context) {
	losses, err := h.fund.ListOpenLosses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]LossResponse, 0, len(losses))
	for _, l := range losses {
		out = append(out, LossResponse{
			ID:          l.ID,
			BookingID:   l.BookingID,
			ClaimRef:    l.ClaimRef,
			RenterID:    l.RenterID,
			AmountCents: l.AmountCents,
			Currency:    l.Currency,
			Status:      string(l.Status),
		})
	}
	respondJSON(c, http.StatusOK, out)
}

// Rebalance handles POST /v1/fgo/rebalance
func (h *FundHandler) Rebalance(c *gin.Context) {
	var req RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	err := h.fund.Rebalance(c.Request.Context(), service.RebalanceRequest{
		From:        req.From,
		To:          req.To,
		AmountCents: req.AmountCents,
		OperatorID:  operatorID(c),
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Status(c)
}
