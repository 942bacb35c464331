package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// EventStore implements domain.EventStore on the bot_events table.
type EventStore struct {
	db dbtx
}

// NewEventStore creates an EventStore.
func NewEventStore(db dbtx) *EventStore {
	return &EventStore{db: db}
}

// Append inserts one event. A zero CreatedAt takes the database default.
func (s *EventStore) Append(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}
	if evt.Payload == nil {
		payload = []byte("{}")
	}

	var marketID *string
	if evt.MarketID != "" {
		marketID = &evt.MarketID
	}

	if evt.CreatedAt.IsZero() {
		const q = `INSERT INTO bot_events (event_type, market_id, payload) VALUES ($1, $2, $3)`
		_, err = s.db.Exec(ctx, q, string(evt.Type), marketID, payload)
	} else {
		const q = `INSERT INTO bot_events (event_type, market_id, payload, created_at) VALUES ($1, $2, $3, $4)`
		_, err = s.db.Exec(ctx, q, string(evt.Type), marketID, payload, evt.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", evt.Type, err)
	}
	return nil
}

// List returns events newest first. An empty eventType matches every type.
func (s *EventStore) List(ctx context.Context, eventType domain.EventType, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := listEventsQuery(eventType, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			evt      domain.Event
			typ      string
			marketID *string
			payload  []byte
		)
		if err := rows.Scan(&typ, &marketID, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		evt.Type = domain.EventType(typ)
		if marketID != nil {
			evt.MarketID = *marketID
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &evt.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode event payload: %w", err)
			}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// Name identifies the store as a telemetry sink.
func (s *EventStore) Name() string { return "postgres" }

// Write appends evt; it lets the store act as a telemetry sink.
func (s *EventStore) Write(ctx context.Context, evt domain.Event) error {
	return s.Append(ctx, evt)
}

func listEventsQuery(eventType domain.EventType, opts domain.ListOpts) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT event_type, market_id, payload, created_at FROM bot_events WHERE 1=1`)

	arg := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, clause, len(args))
	}
	if eventType != "" {
		arg(" AND event_type = $%d", string(eventType))
	}
	if opts.Since != nil {
		arg(" AND created_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		arg(" AND created_at <= $%d", *opts.Until)
	}
	b.WriteString(" ORDER BY created_at DESC")
	if opts.Limit > 0 {
		arg(" LIMIT $%d", opts.Limit)
	}
	if opts.Offset > 0 {
		arg(" OFFSET $%d", opts.Offset)
	}
	return b.String(), args
}

var _ domain.EventStore = (*EventStore)(nil)
