package handler

import (
	"net/http"
)

// StatusSource produces the trader status document.
type StatusSource interface {
	Status() any
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus writes the current trader status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}
