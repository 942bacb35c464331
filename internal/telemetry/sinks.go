package telemetry

import (
	"context"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// EventNotifier renders an event into an operator alert.
type EventNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, evt domain.Event) error
}

// NotifySink forwards events to operator alert channels.
type NotifySink struct {
	notifier EventNotifier
}

// NewNotifySink wraps n as a sink.
func NewNotifySink(n EventNotifier) *NotifySink {
	return &NotifySink{notifier: n}
}

// Name identifies the sink.
func (s *NotifySink) Name() string { return "notify" }

// Write sends evt when any channel is configured.
func (s *NotifySink) Write(ctx context.Context, evt domain.Event) error {
	if !s.notifier.Enabled() {
		return nil
	}
	return s.notifier.Notify(ctx, evt)
}

// LogSink writes every event through a callback, used when no other sink is
// configured so events still reach the log.
type LogSink struct {
	log func(ctx context.Context, evt domain.Event)
}

// NewLogSink creates a sink calling fn.
func NewLogSink(fn func(ctx context.Context, evt domain.Event)) *LogSink {
	return &LogSink{log: fn}
}

// Name identifies the sink.
func (s *LogSink) Name() string { return "log" }

// Write logs evt.
func (s *LogSink) Write(ctx context.Context, evt domain.Event) error {
	s.log(ctx, evt)
	return nil
}
