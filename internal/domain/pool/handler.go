package pool

import (
	"net/http"
	"strconv"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/pkg/errorhandler"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
)

type Handler struct {
	accountant *Accountant
	recorder   *Recorder
}

func NewHandler(accountant *Accountant, recorder *Recorder) *Handler {
	return &Handler{accountant: accountant, recorder: recorder}
}

// Snapshots handles GET /api/admin/pool/snapshots
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		response.NotFound(w, "Pool snapshots are not enabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	snaps, err := h.recorder.History(r.Context(), limit)
	if err != nil {
		status, code, message, _ := ledger.HTTPError(err)
		errorhandler.HandleError(r.Context(), w, status, code, message, err)
		return
	}
	response.OK(w, snaps)
}

// State handles GET /pool
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.accountant.ComputePoolState(r.Context())
	if err != nil {
		status, code, message, _ := ledger.HTTPError(err)
		errorhandler.HandleError(r.Context(), w, status, code, message, err)
		return
	}
	response.OK(w, state)
}
