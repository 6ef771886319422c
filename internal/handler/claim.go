package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autorent/internal/service"
)

// ClaimHandler handles HTTP requests for disputes and claims.
type ClaimHandler struct {
	disputes *service.DisputeService
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(disputes *service.DisputeService) *ClaimHandler {
	return &ClaimHandler{disputes: disputes}
}

// OpenDisputeRequest is the HTTP request body for opening a dispute.
type OpenDisputeRequest struct {
	Reason       string   `json:"reason" binding:"required"`
	Evidence     []string `json:"evidence"`
	ClaimedCents int64    `json:"claimed_cents" binding:"gte=0"`
}

// ResolveClaimRequest is the HTTP request body for resolving a claim.
type ResolveClaimRequest struct {
	ChargeRenterCents int64  `json:"charge_renter_cents" binding:"gte=0"`
	AtFault           bool   `json:"at_fault"`
	Notes             string `json:"notes"`
}

// ResolutionResponse is the HTTP response for a closed claim.
type ResolutionResponse struct {
	Claim      ClaimResponse       `json:"claim"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

// Open handles POST /v1/bookings/:id/disputes
func (h *ClaimHandler) Open(c *gin.Context) {
	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	claim, err := h.disputes.Open(c.Request.Context(), service.OpenDisputeRequest{
		BookingID:    c.Param("id"),
		ActorID:      actorID(c),
		Reason:       req.Reason,
		Evidence:     req.Evidence,
		ClaimedCents: req.ClaimedCents,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newClaimResponse(claim))
}

// Get handles GET /v1/claims/:id
func (h *ClaimHandler) Get(c *gin.Context) {
	claim, err := h.disputes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newClaimResponse(claim))
}

// Review handles POST /v1/claims/:id/review
func (h *ClaimHandler) Review(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	claim, err := h.disputes.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newClaimResponse(claim))
}

// Resolve handles POST /v1/claims/:id/resolve
func (h *ClaimHandler) Resolve(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req ResolveClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	res, err := h.disputes.Resolve(c.Request.Context(), service.ResolveRequest{
		ClaimID:           c.Param("id"),
		ChargeRenterCents: req.ChargeRenterCents,
		AtFault:           req.AtFault,
		Notes:             req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newResolutionResponse(res))
}

// Reject handles POST /v1/claims/:id/reject
func (h *ClaimHandler) Reject(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)

	res, err := h.disputes.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newResolutionResponse(res))
}

func newResolutionResponse(r *service.Resolution) ResolutionResponse {
	return ResolutionResponse{
		Claim:      newClaimResponse(r.Claim),
		Settlement: newSettlementResponse(r.Settlement),
	}
}
