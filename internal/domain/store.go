package domain

import (
	"context"
	"time"
)

// ListOpts holds pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists telemetry events.
type EventStore interface {
	Append(ctx context.Context, evt Event) error
	List(ctx context.Context, eventType EventType, opts ListOpts) ([]Event, error)
}

// ControlStore reads and seeds operator control flags.
type ControlStore interface {
	// Latest returns the most recently updated record, or ErrNotFound when the
	// table is empty.
	Latest(ctx context.Context) (ControlRecord, error)
	Insert(ctx context.Context, rec ControlRecord) (ControlRecord, error)
}
