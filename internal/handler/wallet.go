package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autorent/internal/domain"
	"autorent/internal/middleware"
	"autorent/internal/service"
)

// WalletHandler handles HTTP requests for wallet balances and movements.
type WalletHandler struct {
	ledger *service.Ledger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger *service.Ledger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// LockFundsRequest commits funds against a reference.
type LockFundsRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Reference   string `json:"reference" binding:"required"`
}

// UnlockFundsRequest releases the lock held for a reference. Without a
// user the lock is looked up by reference alone.
type UnlockFundsRequest struct {
	UserID    string `json:"user_id"`
	Reference string `json:"reference" binding:"required"`
}

// WalletChargeRequest debits available funds and credits a payee.
type WalletChargeRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	PayeeID     string `json:"payee_id" binding:"required,nefield=UserID"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Reference   string `json:"reference" binding:"required"`
	Description string `json:"description"`
}

// UnlockFundsResponse reports how much was released.
type UnlockFundsResponse struct {
	ReleasedCents int64 `json:"released_cents"`
}

// DepositRequest is a provider-confirmed top-up.
type DepositRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Reference   string `json:"reference"`
}

// WithdrawRequest pays out part of the caller's available balance.
type WithdrawRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,gt=0"`
}

// ReconcileResponse compares cached balances with the ledger.
type ReconcileResponse struct {
	UserID        string `json:"user_id"`
	CachedBalance int64  `json:"cached_balance_cents"`
	CachedLocked  int64  `json:"cached_locked_cents"`
	LedgerBalance int64  `json:"ledger_balance_cents"`
	LedgerLocked  int64  `json:"ledger_locked_cents"`
	Consistent    bool   `json:"consistent"`
}

// Balance handles GET /v1/wallets/:userId
func (h *WalletHandler) Balance(c *gin.Context) {
	acct, err := h.ledger.Balance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newAccountResponse(acct))
}

// Transactions handles GET /v1/wallets/:userId/transactions
func (h *WalletHandler) Transactions(c *gin.Context) {
	txns, err := h.ledger.Transactions(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTransactionResponse(t))
	}
	respondJSON(c, http.StatusOK, out)
}

// Lock handles POST /v1/wallets/locks
func (h *WalletHandler) Lock(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req LockFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	entry, err := h.ledger.Lock(c.Request.Context(), service.LockRequest{
		UserID:         req.UserID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reference:      req.Reference,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, newTransactionResponse(entry))
}

// Unlock handles POST /v1/wallets/unlock
func (h *WalletHandler) Unlock(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req UnlockFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	var (
		released int64
		err      error
	)
	if req.UserID == "" {
		released, err = h.ledger.UnlockByReference(c.Request.Context(), req.Reference)
	} else {
		released, err = h.ledger.Unlock(c.Request.Context(), req.UserID, req.Reference)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, UnlockFundsResponse{ReleasedCents: released})
}

// Charge handles POST /v1/wallets/charges
func (h *WalletHandler) Charge(c *gin.Context) {
	if operatorID(c) == "" {
		respondError(c, service.ErrOperatorRequired)
		return
	}
	var req WalletChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	entry, err := h.ledger.Charge(c.Request.Context(), service.ChargeRequest{
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Reference:   req.Reference,
		Description: req.Description,
		Payees:      []service.Payee{{UserID: req.PayeeID, AmountCents: req.AmountCents}},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, newTransactionResponse(entry))
}

// Deposit handles POST /v1/wallets/deposits. The provider's
// Idempotency-Key makes webhook redelivery safe.
func (h *WalletHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	entry, err := h.ledger.Deposit(c.Request.Context(), service.DepositRequest{
		UserID:         req.UserID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Reference:      req.Reference,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, newTransactionResponse(entry))
}

// Withdraw handles POST /v1/wallets/withdrawals
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindError(err))
		return
	}

	entry, err := h.ledger.Withdraw(c.Request.Context(), service.WithdrawRequest{
		UserID:         actorID(c),
		AmountCents:    req.AmountCents,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if entry.Status != domain.TransactionCompleted {
		code = http.StatusAccepted
	}
	respondJSON(c, code, newTransactionResponse(entry))
}

// Reconcile handles POST /v1/wallets/:userId/reconcile
func (h *WalletHandler) Reconcile(c *gin.Context) {
	report, err := h.ledger.Reconcile(c.Request.Context(), c.Param("userId"))
	if err != nil && !(errors.Is(err, service.ErrIntegrityViolation) && report != nil) {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if !report.Consistent {
		code = http.StatusLocked
	}
	respondJSON(c, code, ReconcileResponse{
		UserID:        report.UserID,
		CachedBalance: report.CachedBalance,
		CachedLocked:  report.CachedLocked,
		LedgerBalance: report.LedgerBalance,
		LedgerLocked:  report.LedgerLocked,
		Consistent:    report.Consistent,
	})
}

// Unfreeze handles POST /v1/wallets/:userId/unfreeze
func (h *WalletHandler) Unfreeze(c *gin.Context) {
	acct, err := h.ledger.Unfreeze(c.Request.Context(), c.Param("userId"), operatorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newAccountResponse(acct))
}
