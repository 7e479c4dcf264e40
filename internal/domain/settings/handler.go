package settings

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/middleware"
	"github.com/avalove/avalove-ledger/internal/pkg/errorhandler"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type settingsResponse struct {
	Effective Ledger   `json:"effective"`
	Records   []Record `json:"records"`
}

// Get handles GET /api/admin/settings
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	effective, err := h.svc.Load(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, settingsResponse{Effective: effective, Records: records})
}

// Update handles PUT /api/admin/settings
// Body is a flat object of key -> decimal string.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	effective, err := h.svc.Update(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, effective)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrUnknownSetting) {
		response.BadRequest(w, err.Error())
		return
	}
	status, code, message, _ := ledger.HTTPError(err)
	errorhandler.HandleError(r.Context(), w, status, code, message, err)
}

// Routes mounts the admin settings endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	return r
}
