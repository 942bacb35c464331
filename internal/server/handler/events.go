package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StreamReader reads the live telemetry stream.
type StreamReader interface {
	Recent(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves telemetry history from the event store and the live
// event stream.
type EventsHandler struct {
	store  domain.EventStore
	stream StreamReader
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler. Either source may be nil.
func NewEventsHandler(store domain.EventStore, stream StreamReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		store:  store,
		stream: stream,
		logger: logger.With(slog.String("handler", "events")),
	}
}

// ListEvents returns stored events, newest first, optionally filtered by
// ?type=.
// GET /api/events
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	opts := parseListOpts(r)
	events, err := h.store.List(r.Context(), domain.EventType(r.URL.Query().Get("type")), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "limit": opts.Limit, "offset": opts.Offset})
}

type streamEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// StreamEvents returns stream entries after ?after= (default "0").
// GET /api/events/stream
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}

	msgs, err := h.stream.Recent(r.Context(), after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	out := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamEntry{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
