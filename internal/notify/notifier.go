// Package notify forwards selected telemetry events to operator chat
// channels (Telegram, Discord).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to every Sender. Notify only forwards
// the configured event types and, with a limiter, at most limit alerts per
// event type per window. NotifyAll bypasses both.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger

	limiter domain.RateLimiter
	limit   int
	window  time.Duration
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithThrottle limits Notify to limit alerts per event type per window.
func WithThrottle(limiter domain.RateLimiter, limit int, window time.Duration) Option {
	return func(n *Notifier) {
		n.limiter = limiter
		n.limit = limit
		n.window = window
	}
}

// NewNotifier creates a Notifier. An empty events list allows every type.
func NewNotifier(senders []Sender, events []domain.EventType, logger *slog.Logger, opts ...Option) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[e] = true
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify renders evt and sends it when its type is allowed and not
// throttled.
func (n *Notifier) Notify(ctx context.Context, evt domain.Event) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[evt.Type] {
		return nil
	}

	if n.limiter != nil {
		ok, err := n.limiter.Allow(ctx, "notify:"+string(evt.Type), n.limit, n.window)
		if err != nil {
			// Alerts still go out when the limiter backend is down.
			n.logger.WarnContext(ctx, "notify throttle unavailable", slog.String("error", err.Error()))
		} else if !ok {
			n.logger.DebugContext(ctx, "notification throttled", slog.String("event", string(evt.Type)))
			return nil
		}
	}

	return n.dispatch(ctx, Title(evt), Body(evt))
}

// NotifyAll sends to all senders regardless of event filters.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
