package payout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/pkg/errorhandler"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Claim handles POST /api/admin/users/{id}/payouts
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	result, err := h.svc.Claim(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNothingToPay):
			response.Error(w, http.StatusUnprocessableEntity, "NOTHING_TO_PAY", "User has no spendable balance")
		case errors.Is(err, earning.ErrRecordNotFound):
			response.NotFound(w, "Earning records not found")
		default:
			status, code, message, _ := ledger.HTTPError(err)
			errorhandler.HandleError(r.Context(), w, status, code, message, err)
		}
		return
	}
	response.OK(w, result)
}
