package strategy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// SpreadCaptureConfig tunes the spread-capture strategy.
type SpreadCaptureConfig struct {
	SpreadMinBps float64
	MinEdgeBps   float64
	OrderSize    float64
	Cooldown     time.Duration
	PaperTrading bool
	ShadowMode   bool
}

// SpreadCapture joins the bid of markets whose spread is wide enough to be
// worth resting inside.
type SpreadCapture struct {
	cfg       SpreadCaptureConfig
	books     BookProvider
	risk      RiskChecker
	exec      LiveExecutor
	control   domain.ControlProvider
	telemetry domain.EventEmitter
	cooldown  *executor.Cooldown
	logger    *slog.Logger

	now func() time.Time
}

// NewSpreadCapture creates the strategy. control and telemetry may be nil;
// without a control provider live orders are not gated.
func NewSpreadCapture(cfg SpreadCaptureConfig, books BookProvider, risk RiskChecker, exec LiveExecutor, control domain.ControlProvider, telemetry domain.EventEmitter, logger *slog.Logger) *SpreadCapture {
	return &SpreadCapture{
		cfg:       cfg,
		books:     books,
		risk:      risk,
		exec:      exec,
		control:   control,
		telemetry: telemetry,
		cooldown:  executor.NewCooldown(cfg.Cooldown),
		logger:    logger.With(slog.String("strategy", "spread_capture")),
		now:       time.Now,
	}
}

// Name returns the strategy identifier.
func (s *SpreadCapture) Name() string { return "spread_capture" }

// OnBookUpdate evaluates the market's top of book and buys at the bid when
// the spread and edge thresholds are met. Nothing runs once trading has
// halted.
func (s *SpreadCapture) OnBookUpdate(ctx context.Context, marketID string) {
	if s.exec.Halted() {
		return
	}
	ob, ok := s.books.Lookup(marketID)
	if !ok {
		return
	}
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return
	}

	spreadBps := book.SpreadBps(bid.Price, ask.Price)
	if spreadBps < s.cfg.SpreadMinBps {
		return
	}

	now := s.now()
	// The cooldown is consumed before the edge check.
	if !s.cooldown.Allow(marketID, now) {
		return
	}

	if ask.Price <= 0 {
		return
	}
	edgeBps := (ask.Price - bid.Price) / ask.Price * 10_000
	if edgeBps < s.cfg.MinEdgeBps {
		return
	}

	notional := s.cfg.OrderSize * bid.Price
	if d := s.risk.CanPlace(marketID, notional, now); !d.Allowed {
		s.logger.WarnContext(ctx, "risk blocked order",
			slog.String("market_id", marketID),
			slog.String("reason", d.Reason),
		)
		s.emit(domain.EventRiskBlock, marketID, map[string]any{
			"reason":   d.Reason,
			"notional": notional,
			"strategy": s.Name(),
		})
		return
	}

	payload := map[string]any{
		"strategy":  s.Name(),
		"side":      string(domain.OrderSideBuy),
		"price":     bid.Price,
		"size":      s.cfg.OrderSize,
		"spreadBps": spreadBps,
		"edgeBps":   edgeBps,
	}
	if s.cfg.PaperTrading {
		s.logger.InfoContext(ctx, "paper spread capture", slog.String("market_id", marketID), slog.Float64("price", bid.Price))
		s.emit(domain.EventPaperTrade, marketID, payload)
		return
	}
	if s.cfg.ShadowMode {
		s.logger.InfoContext(ctx, "shadow spread capture", slog.String("market_id", marketID), slog.Float64("price", bid.Price))
		s.emit(domain.EventShadowTrade, marketID, payload)
		return
	}
	if reason := s.blocked(); reason != "" {
		s.emit(domain.EventControlBlock, marketID, map[string]any{
			"reason":   reason,
			"strategy": s.Name(),
		})
		return
	}

	err := s.exec.ExecuteOrder(ctx, s.Name(), domain.OrderRequest{
		MarketID: marketID,
		Side:     domain.OrderSideBuy,
		Price:    bid.Price,
		Size:     s.cfg.OrderSize,
	})
	if errors.Is(err, domain.ErrHalted) {
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "order failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		s.emit(domain.EventOrderError, marketID, map[string]any{"error": err.Error()})
	}
}

// blocked returns the control gate reason for a live order, if any.
func (s *SpreadCapture) blocked() string {
	if s.control == nil {
		return ""
	}
	st := s.control.State()
	switch {
	case !st.Connected:
		return service.BlockDisconnected
	case !st.Armed:
		return service.BlockNotArmed
	case !st.LiveTrading:
		return service.BlockLiveTradingDisabled
	}
	return ""
}

func (s *SpreadCapture) emit(typ domain.EventType, marketID string, payload map[string]any) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.Emit(domain.Event{
		Type:      typ,
		MarketID:  marketID,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	})
}
