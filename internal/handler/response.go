package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autorent/internal/repository"
	"autorent/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unexpected errors are attached to the gin context so the APM middleware
// reports them; the client only sees a generic message.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrCarNotFound),
		errors.Is(err, service.ErrClaimNotFound),
		errors.Is(err, service.ErrLockNotFound),
		errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidID),
		errors.Is(err, service.ErrInvalidPaymentMode),
		errors.Is(err, service.ErrInvalidSeverity),
		errors.Is(err, service.ErrInvalidSubfund),
		errors.Is(err, service.ErrIdempotencyKeyRequired),
		errors.Is(err, service.ErrDamageDetailsRequired),
		errors.Is(err, service.ErrCurrencyMismatch),
		errors.Is(err, service.ErrInvalidPriceLock),
		errors.Is(err, service.ErrPriceLockMismatch),
		errors.Is(err, service.ErrOperatorRequired):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInsufficientFundBalance),
		errors.Is(err, service.ErrProviderDeclined):
		return http.StatusPaymentRequired

	case errors.Is(err, service.ErrNotPermitted),
		errors.Is(err, service.ErrOwnerSuspended):
		return http.StatusForbidden

	case errors.Is(err, service.ErrBookingOverlap),
		errors.Is(err, service.ErrCarUnavailable),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCancellationWindowClosed),
		errors.Is(err, service.ErrNoShowTooEarly),
		errors.Is(err, service.ErrClaimClosed),
		errors.Is(err, service.ErrClaimInProgress),
		errors.Is(err, service.ErrWaterfallMismatch),
		errors.Is(err, service.ErrLockInUse),
		errors.Is(err, service.ErrInsuranceNotActive),
		errors.Is(err, service.ErrConcurrencyConflict),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrAccountFrozen),
		errors.Is(err, service.ErrIntegrityViolation):
		return http.StatusLocked

	case errors.Is(err, service.ErrProviderUnavailable),
		errors.Is(err, service.ErrInsuranceActivation):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
