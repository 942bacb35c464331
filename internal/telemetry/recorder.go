// Package telemetry fans trader events out to persistence, streaming,
// alerting and metrics sinks without blocking the trading path.
package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// DefaultBufferSize is the event queue capacity used when none is given.
const DefaultBufferSize = 1024

// Sink receives every recorded event.
type Sink interface {
	Name() string
	Write(ctx context.Context, evt domain.Event) error
}

// Observer is told about drops and sink failures.
type Observer interface {
	ObserveDropped()
	ObserveSinkError(sink string)
}

// Recorder implements domain.EventEmitter. Emit enqueues onto a bounded
// buffer drained by Run; a full buffer drops the event.
type Recorder struct {
	sinks    []Sink
	queue    chan domain.Event
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	sinkTimeout time.Duration
	dropped     atomic.Int64
	written     atomic.Int64
}

// NewRecorder creates a recorder writing to sinks in order.
func NewRecorder(sinks []Sink, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		sinks:       sinks,
		queue:       make(chan domain.Event, bufferSize),
		logger:      logger.With(slog.String("component", "telemetry")),
		now:         time.Now,
		sinkTimeout: 5 * time.Second,
	}
}

// SetObserver attaches drop and failure counters.
func (r *Recorder) SetObserver(o Observer) { r.observer = o }

// Emit enqueues evt without blocking.
func (r *Recorder) Emit(evt domain.Event) {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = r.now().UTC()
	}
	select {
	case r.queue <- evt:
	default:
		r.dropped.Add(1)
		if r.observer != nil {
			r.observer.ObserveDropped()
		}
		r.logger.Warn("telemetry buffer full, event dropped",
			slog.String("event_type", string(evt.Type)),
			slog.String("market_id", evt.MarketID),
		)
	}
}

// Dropped returns how many events were dropped.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written returns how many events were delivered to the sinks.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Run drains the queue until ctx is cancelled, then delivers whatever is
// still buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-r.queue:
			r.deliver(ctx, evt)
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case evt := <-r.queue:
			r.deliver(ctx, evt)
		default:
			return
		}
	}
}

func (r *Recorder) deliver(ctx context.Context, evt domain.Event) {
	for _, s := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
		err := s.Write(sinkCtx, evt)
		cancel()
		if err != nil {
			if r.observer != nil {
				r.observer.ObserveSinkError(s.Name())
			}
			r.logger.WarnContext(ctx, "telemetry sink failed",
				slog.String("sink", s.Name()),
				slog.String("event_type", string(evt.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	r.written.Add(1)
}
