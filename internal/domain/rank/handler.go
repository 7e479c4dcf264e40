package rank

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/middleware"
	"github.com/avalove/avalove-ledger/internal/pkg/errorhandler"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
	"github.com/avalove/avalove-ledger/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type submitScoreRequest struct {
	UserID     string     `json:"user_id" validate:"required,uuid"`
	Score      string     `json:"score" validate:"required,numeric"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// MyRank handles GET /ranks/{tokenId}
func (h *Handler) MyRank(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	standing, err := h.svc.Rank(r.Context(), chi.URLParam(r, "tokenId"), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, standing)
}

// Top handles GET /ranks/{tokenId}/top
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.svc.Top(r.Context(), chi.URLParam(r, "tokenId"), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// Submit handles PUT /api/internal/ranks/{tokenId}
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}
	score, err := decimal.NewFromString(req.Score)
	if err != nil {
		response.BadRequest(w, "Invalid score")
		return
	}

	var achievedAt time.Time
	if req.AchievedAt != nil {
		achievedAt = *req.AchievedAt
	}

	entry, err := h.svc.Submit(r.Context(), chi.URLParam(r, "tokenId"), uuid.MustParse(req.UserID), score, achievedAt)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, entry)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotRanked):
		response.NotFound(w, "No score on this board")
	case errors.Is(err, ErrInvalidTokenID):
		response.BadRequest(w, "Invalid token ID")
	default:
		status, code, message, _ := ledger.HTTPError(err)
		errorhandler.HandleError(r.Context(), w, status, code, message, err)
	}
}

// Routes mounts the public rank endpoints.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{tokenId}/top", h.Top)
	r.With(authMiddleware).Get("/{tokenId}", h.MyRank)
	return r
}
