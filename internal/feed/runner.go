package feed

import (
	"context"
	"log/slog"
	"time"
)

// Conn is the socket the runner drives. It reconnects on its own once
// connected and replays the last subscription.
type Conn interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, payload any) error
	OnMessage(handler func(raw []byte))
	Close() error
}

// Handler receives every normalized book message.
type Handler func(msg Message)

// Runner connects the feed socket, sends the subscribe payload and forwards
// parsed messages to a handler until its context is cancelled.
type Runner struct {
	conn       Conn
	payload    any
	handle     Handler
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewRunner creates a runner that subscribes with payload.
func NewRunner(conn Conn, payload any, handle Handler, logger *slog.Logger) *Runner {
	return &Runner{
		conn:       conn,
		payload:    payload,
		handle:     handle,
		retryDelay: 2 * time.Second,
		logger:     logger.With(slog.String("component", "book_feed")),
	}
}

// Run blocks until ctx is cancelled. The first connection is retried until
// it succeeds; later drops are handled by the connection itself.
func (r *Runner) Run(ctx context.Context) error {
	r.conn.OnMessage(func(raw []byte) {
		for _, msg := range ParseFrame(raw) {
			r.handle(msg)
		}
	})
	defer r.conn.Close()

	for {
		err := r.connect(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		r.logger.WarnContext(ctx, "feed connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", r.retryDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryDelay):
		}
	}

	r.logger.InfoContext(ctx, "feed subscribed")
	<-ctx.Done()
	return nil
}

func (r *Runner) connect(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := r.conn.Connect(connCtx); err != nil {
		return err
	}
	return r.conn.Subscribe(connCtx, r.payload)
}
