package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ControlService tracks the operator's armed and live-trading flags by
// polling the control store. Without a store, or after a failed poll, the
// state is disconnected and execution is blocked.
type ControlService struct {
	store     domain.ControlStore
	interval  time.Duration
	telemetry domain.EventEmitter
	logger    *slog.Logger

	mu    sync.RWMutex
	state domain.ControlState
}

// NewControlService creates a control service. store may be nil.
func NewControlService(store domain.ControlStore, interval time.Duration, telemetry domain.EventEmitter, logger *slog.Logger) *ControlService {
	return &ControlService{
		store:     store,
		interval:  interval,
		telemetry: telemetry,
		logger:    logger.With(slog.String("component", "control")),
	}
}

// State returns the latest control state.
func (s *ControlService) State() domain.ControlState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Refresh reads the newest control record, seeding a disarmed one when the
// store is empty.
func (s *ControlService) Refresh(ctx context.Context) error {
	if s.store == nil {
		return domain.ErrNoControlStore
	}

	rec, err := s.store.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = s.store.Insert(ctx, domain.ControlRecord{Armed: false, LiveTrading: false})
		if err != nil {
			err = fmt.Errorf("control_service: seed: %w", err)
		}
	} else if err != nil {
		err = fmt.Errorf("control_service: fetch: %w", err)
	}

	if err != nil {
		prev := s.State()
		next := prev
		next.Connected = false
		s.apply(ctx, next)
		return err
	}

	s.apply(ctx, domain.ControlState{
		Armed:       rec.Armed,
		LiveTrading: rec.LiveTrading,
		Connected:   true,
		UpdatedAt:   rec.UpdatedAt,
	})
	return nil
}

// Update writes new flags and refreshes the state from the store.
func (s *ControlService) Update(ctx context.Context, armed, liveTrading bool) (domain.ControlState, error) {
	if s.store == nil {
		return s.State(), domain.ErrNoControlStore
	}
	if _, err := s.store.Insert(ctx, domain.ControlRecord{Armed: armed, LiveTrading: liveTrading}); err != nil {
		return s.State(), fmt.Errorf("control_service: update: %w", err)
	}
	if err := s.Refresh(ctx); err != nil {
		return s.State(), err
	}
	s.logger.InfoContext(ctx, "control flags updated",
		slog.Bool("armed", armed),
		slog.Bool("live_trading", liveTrading),
	)
	return s.State(), nil
}

// Run polls until ctx is cancelled.
func (s *ControlService) Run(ctx context.Context) error {
	if s.store == nil {
		s.logger.WarnContext(ctx, "control store not configured, trading stays disabled")
		<-ctx.Done()
		return nil
	}

	s.refreshLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refreshLogged(ctx)
		}
	}
}

func (s *ControlService) refreshLogged(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "control fetch failed", slog.String("error", err.Error()))
	}
}

func (s *ControlService) apply(ctx context.Context, next domain.ControlState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev.Armed == next.Armed && prev.LiveTrading == next.LiveTrading && prev.Connected == next.Connected {
		return
	}
	s.logger.InfoContext(ctx, "control state changed",
		slog.Bool("armed", next.Armed),
		slog.Bool("live_trading", next.LiveTrading),
		slog.Bool("connected", next.Connected),
	)
	emit(s.telemetry, domain.EventControlState, "", next.Payload())
}
