package ledger

import (
	"errors"
	"net/http"
)

// HTTPError maps a ledger error to status, code and a client-safe message.
// ok is false for errors that carry no ledger meaning.
func HTTPError(err error) (status int, code, message string, ok bool) {
	switch {
	case errors.Is(err, ErrDataUnavailable):
		return http.StatusServiceUnavailable, "DATA_UNAVAILABLE", "Ledger data is temporarily unavailable", true
	case errors.Is(err, ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity, "INVALID_CONFIGURATION", err.Error(), true
	case errors.Is(err, ErrConcurrentPayoutConflict):
		return http.StatusConflict, "PAYOUT_CONFLICT", "Records were already claimed by another payout, recompute and retry", true
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT", err.Error(), true
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", false
}
