package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// topPositions is how many holdings are listed in a snapshot.
const topPositions = 5

// PositionsConfig configures wallet polling. An empty User disables it.
type PositionsConfig struct {
	User           string
	Limit          int
	PollInterval   time.Duration
	MinBalanceUSDC float64
}

// PositionsSummary aggregates one poll.
type PositionsSummary struct {
	CurrentValue float64
	CashPnL      float64
	Count        int
	Top          []domain.Position
}

// PositionsService polls the wallet's positions and warns when a live
// trader is running low on funds.
type PositionsService struct {
	cfg       PositionsConfig
	fetcher   domain.PositionsFetcher
	control   domain.ControlProvider
	telemetry domain.EventEmitter
	logger    *slog.Logger
}

// NewPositionsService creates a positions poller. control and telemetry may
// be nil.
func NewPositionsService(cfg PositionsConfig, fetcher domain.PositionsFetcher, control domain.ControlProvider, telemetry domain.EventEmitter, logger *slog.Logger) *PositionsService {
	return &PositionsService{
		cfg:       cfg,
		fetcher:   fetcher,
		control:   control,
		telemetry: telemetry,
		logger:    logger.With(slog.String("component", "positions")),
	}
}

// Refresh fetches positions once and emits the snapshot.
func (s *PositionsService) Refresh(ctx context.Context) (PositionsSummary, error) {
	positions, err := s.fetcher.GetPositions(ctx, s.cfg.User, s.cfg.Limit)
	if err != nil {
		return PositionsSummary{}, fmt.Errorf("positions_service: fetch: %w", err)
	}

	var sum PositionsSummary
	for _, p := range positions {
		sum.CurrentValue += p.CurrentValue
		sum.CashPnL += p.CashPnL
		sum.Count++
	}
	n := min(len(positions), topPositions)
	sum.Top = positions[:n]

	top := make([]map[string]any, 0, n)
	for _, p := range sum.Top {
		top = append(top, map[string]any{
			"title":        p.Title,
			"outcome":      p.Outcome,
			"size":         p.Size,
			"curPrice":     p.CurPrice,
			"currentValue": p.CurrentValue,
		})
	}
	emit(s.telemetry, domain.EventPositionsSnapshot, "", map[string]any{
		"user":         s.cfg.User,
		"currentValue": sum.CurrentValue,
		"cashPnl":      sum.CashPnL,
		"count":        sum.Count,
		"top":          top,
	})

	if s.control != nil && s.control.State().LiveTrading && sum.CurrentValue < s.cfg.MinBalanceUSDC {
		s.logger.WarnContext(ctx, "funds below minimum",
			slog.Float64("current_value", sum.CurrentValue),
			slog.Float64("required", s.cfg.MinBalanceUSDC),
		)
		emit(s.telemetry, domain.EventFundsInsufficient, "", map[string]any{
			"required":     s.cfg.MinBalanceUSDC,
			"currentValue": sum.CurrentValue,
		})
	}
	return sum, nil
}

// Run polls until ctx is cancelled. Without a user it returns immediately.
func (s *PositionsService) Run(ctx context.Context) error {
	if s.cfg.User == "" {
		s.logger.WarnContext(ctx, "positions polling disabled, no wallet configured")
		return nil
	}

	s.refreshLogged(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
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

func (s *PositionsService) refreshLogged(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "positions fetch failed", slog.String("error", err.Error()))
	}
}
