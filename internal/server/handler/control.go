package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ControlUpdater reads and writes the operator control flags.
type ControlUpdater interface {
	State() domain.ControlState
	Update(ctx context.Context, armed, liveTrading bool) (domain.ControlState, error)
}

// ControlHandler serves /api/control.
type ControlHandler struct {
	control ControlUpdater
	logger  *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(control ControlUpdater, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		control: control,
		logger:  logger.With(slog.String("handler", "control")),
	}
}

type controlRequest struct {
	Armed       *bool `json:"armed"`
	LiveTrading *bool `json:"liveTrading"`
}

// GetControl returns the current control state.
// GET /api/control
func (h *ControlHandler) GetControl(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.control.State())
}

// UpdateControl writes new flags. Omitted fields keep their current value.
// POST /api/control
func (h *ControlHandler) UpdateControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cur := h.control.State()
	armed, live := cur.Armed, cur.LiveTrading
	if req.Armed != nil {
		armed = *req.Armed
	}
	if req.LiveTrading != nil {
		live = *req.LiveTrading
	}

	state, err := h.control.Update(r.Context(), armed, live)
	if errors.Is(err, domain.ErrNoControlStore) {
		writeError(w, http.StatusServiceUnavailable, "control store not configured")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "control update failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "control update failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
