package balance

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/middleware"
	"github.com/avalove/avalove-ledger/internal/pkg/errorhandler"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
	"github.com/avalove/avalove-ledger/internal/pkg/validator"
)

// HistoryLister lists decay entries for display.
type HistoryLister interface {
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]decay.Entry, error)
}

type Handler struct {
	svc     *Service
	history HistoryLister
}

func NewHandler(svc *Service, history HistoryLister) *Handler {
	return &Handler{svc: svc, history: history}
}

type recordEarningRequest struct {
	UserID           string `json:"user_id" validate:"required,uuid"`
	Source           string `json:"source" validate:"required,earning_source"`
	Amount           string `json:"amount" validate:"required,amount"`
	CompletionStatus string `json:"completion_status" validate:"required,completion_status"`
	DurationSeconds  int64  `json:"duration_seconds" validate:"gte=0"`
}

type recordBurnRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	BurnType string `json:"burn_type" validate:"required,burn_type"`
	Amount   string `json:"amount" validate:"required,amount"`
}

// Balance handles GET /credits/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	snap, err := h.svc.Touch(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, snap)
}

// DecayHistory handles GET /credits/decay-history
func (h *Handler) DecayHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.history.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	response.WithMeta(w, entries, response.Meta{
		Limit:   limit,
		Offset:  offset,
		HasNext: len(entries) == limit,
	})
}

// Heartbeat handles POST /activity/heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	snap, err := h.svc.Heartbeat(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, snap)
}

// RecordEarning handles POST /api/internal/earnings
func (h *Handler) RecordEarning(w http.ResponseWriter, r *http.Request) {
	var req recordEarningRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	rec, err := h.svc.RecordEarning(r.Context(), uuid.MustParse(req.UserID), EarningInput{
		Source:           earning.Source(req.Source),
		Amount:           decimal.RequireFromString(req.Amount),
		CompletionStatus: earning.CompletionStatus(req.CompletionStatus),
		DurationSeconds:  req.DurationSeconds,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, rec)
}

// RecordBurn handles POST /api/internal/burns
func (h *Handler) RecordBurn(w http.ResponseWriter, r *http.Request) {
	var req recordBurnRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	rec, err := h.svc.RecordBurn(r.Context(), uuid.MustParse(req.UserID), burn.Type(req.BurnType), decimal.RequireFromString(req.Amount))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, rec)
}

// UserCredits handles GET /api/admin/users/{id}/credits
func (h *Handler) UserCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	snap, err := h.svc.ComputeSpendable(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, snap)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, earning.ErrInvalidSource):
		response.BadRequest(w, "Invalid earning source")
		return
	case errors.Is(err, earning.ErrInvalidCompletion):
		response.BadRequest(w, "Invalid completion status")
		return
	case errors.Is(err, burn.ErrInvalidBurnType):
		response.BadRequest(w, "Invalid burn type")
		return
	}

	status, code, message, _ := ledger.HTTPError(err)
	errorhandler.HandleError(r.Context(), w, status, code, message, err)
}

// Routes mounts the user-facing credit endpoints.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/decay-history", h.DecayHistory)
	return r
}
