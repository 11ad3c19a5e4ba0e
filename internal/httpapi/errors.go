package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/courtclub/internal/booking"
	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"github.com/gin-gonic/gin"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// mapDomainError translates sentinel errors from the core packages into an
// HTTP status and a stable machine-readable code.
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, roster.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, ledger.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found"
	case errors.Is(err, funding.ErrDepositNotFound):
		return http.StatusNotFound, "deposit_not_found"
	case errors.Is(err, booking.ErrEventAlreadyFinalized):
		return http.StatusConflict, "event_already_finalized"
	case errors.Is(err, roster.ErrEventNotOpen):
		return http.StatusConflict, "event_not_open"
	case errors.Is(err, funding.ErrDepositNotActive):
		return http.StatusConflict, "deposit_not_active"
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate_operation"
	case errors.Is(err, roster.ErrAlreadyRegistered):
		return http.StatusUnprocessableEntity, "already_registered"
	case errors.Is(err, roster.ErrNotRegistered):
		return http.StatusUnprocessableEntity, "not_registered"
	case errors.Is(err, roster.ErrCutoffPassed):
		return http.StatusUnprocessableEntity, "cutoff_passed"
	case errors.Is(err, booking.ErrInsufficientBalance),
		errors.Is(err, funding.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, roster.ErrInvalidEventInput),
		errors.Is(err, roster.ErrInvalidUserID),
		errors.Is(err, ledger.ErrInvalidUserID),
		errors.Is(err, ledger.ErrInvalidAmountCents),
		errors.Is(err, ledger.ErrInvalidEntryType),
		errors.Is(err, ledger.ErrInvalidIdempotencyKey),
		errors.Is(err, ledger.ErrInvalidMetadataJSON),
		errors.Is(err, funding.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
