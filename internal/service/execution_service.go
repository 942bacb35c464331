package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
)

// Control block reasons.
const (
	BlockDisconnected        = "disconnected"
	BlockNotArmed            = "not_armed"
	BlockLiveTradingDisabled = "live_trading_disabled"
)

// ExecutionConfig selects the execution mode and the kill-switch threshold.
type ExecutionConfig struct {
	PaperTrading         bool
	ShadowMode           bool
	TimeInForce          string
	OrderType            string
	MaxConsecutiveErrors int
}

// Leg is one side of an arbitrage.
type Leg struct {
	MarketID string  `json:"marketId"`
	Price    float64 `json:"price"`
}

// PairExecution trades both legs of a complement pair on the same side.
type PairExecution struct {
	Side domain.OrderSide `json:"side"`
	Size float64          `json:"size"`
	LegA Leg              `json:"legA"`
	LegB Leg              `json:"legB"`
}

// CrossExecution buys one market and sells an equivalent one.
type CrossExecution struct {
	Buy  Leg     `json:"buy"`
	Sell Leg     `json:"sell"`
	Size float64 `json:"size"`
}

// TradeRecorder receives execution outcomes for auto-tuning.
type TradeRecorder interface {
	RecordShadowTrade()
	RecordExecutionError()
}

// Alerter pushes urgent operator notifications.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// ExecutionService turns approved opportunities into orders, honoring the
// operator control flags, the paper and shadow modes, and a kill switch
// that halts trading after too many consecutive failures.
type ExecutionService struct {
	cfg       ExecutionConfig
	orders    executor.OrderPlacer
	telemetry domain.EventEmitter
	logger    *slog.Logger

	tuner   TradeRecorder
	control domain.ControlProvider
	alerter Alerter

	mu                sync.Mutex
	consecutiveErrors int
	halted            bool
}

// NewExecutionService creates an execution service. telemetry may be nil.
func NewExecutionService(cfg ExecutionConfig, orders executor.OrderPlacer, telemetry domain.EventEmitter, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		cfg:       cfg,
		orders:    orders,
		telemetry: telemetry,
		logger:    logger.With(slog.String("component", "execution")),
	}
}

// SetTuner attaches the auto-tuner fed with execution outcomes.
func (s *ExecutionService) SetTuner(t TradeRecorder) { s.tuner = t }

// SetControl gates execution on the operator control flags.
func (s *ExecutionService) SetControl(c domain.ControlProvider) { s.control = c }

// SetAlerter sets where the kill switch alert goes.
func (s *ExecutionService) SetAlerter(a Alerter) { s.alerter = a }

// Halted reports whether the kill switch has fired. Once set it stays set.
func (s *ExecutionService) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// ConsecutiveErrors returns the current failure streak.
func (s *ExecutionService) ConsecutiveErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}

// Mode returns "shadow", "paper" or "live".
func (s *ExecutionService) Mode() string {
	switch {
	case s.cfg.ShadowMode:
		return "shadow"
	case s.cfg.PaperTrading:
		return "paper"
	default:
		return "live"
	}
}

// ExecutePair places both legs of a complement pair.
func (s *ExecutionService) ExecutePair(ctx context.Context, in PairExecution) {
	payload := map[string]any{"side": in.Side, "size": in.Size, "legA": in.LegA, "legB": in.LegB}
	if !s.admit(ctx, payload) {
		return
	}

	_ = s.dispatch(ctx, "pair", []domain.OrderRequest{
		s.order(in.LegA, in.Side, in.Size),
		s.order(in.LegB, in.Side, in.Size),
	})
}

// ExecuteCross buys the cheap market and sells the rich one.
func (s *ExecutionService) ExecuteCross(ctx context.Context, in CrossExecution) {
	payload := map[string]any{"buy": in.Buy, "sell": in.Sell, "size": in.Size}
	if !s.admit(ctx, payload) {
		return
	}

	_ = s.dispatch(ctx, "cross", []domain.OrderRequest{
		s.order(in.Buy, domain.OrderSideBuy, in.Size),
		s.order(in.Sell, domain.OrderSideSell, in.Size),
	})
}

// ExecuteOrder places a single live order that the caller has already
// gated on control and mode. It refuses with domain.ErrHalted once the kill
// switch has fired; a failure counts toward it.
func (s *ExecutionService) ExecuteOrder(ctx context.Context, kind string, req domain.OrderRequest) error {
	if s.Halted() {
		return fmt.Errorf("execution: %w", domain.ErrHalted)
	}
	if req.TimeInForce == "" {
		req.TimeInForce = s.cfg.TimeInForce
	}
	if req.OrderType == "" {
		req.OrderType = s.cfg.OrderType
	}
	return s.dispatch(ctx, kind, []domain.OrderRequest{req})
}

// admit applies the halt, control and simulation gates. It returns true
// only when live orders should be sent.
func (s *ExecutionService) admit(ctx context.Context, payload map[string]any) bool {
	if s.Halted() {
		return false
	}

	if s.control != nil {
		state := s.control.State()
		reason := ""
		switch {
		case !state.Connected:
			reason = BlockDisconnected
		case !state.Armed:
			reason = BlockNotArmed
		case !state.LiveTrading && !s.cfg.PaperTrading && !s.cfg.ShadowMode:
			reason = BlockLiveTradingDisabled
		}
		if reason != "" {
			emit(s.telemetry, domain.EventControlBlock, "", map[string]any{
				"reason":  reason,
				"control": state.Payload(),
			})
			return false
		}
	}

	if s.cfg.PaperTrading || s.cfg.ShadowMode {
		evt := domain.EventPaperTrade
		if s.cfg.ShadowMode {
			evt = domain.EventShadowTrade
		}
		s.logger.InfoContext(ctx, "simulated trade", slog.String("mode", s.Mode()), slog.Any("trade", payload))
		emit(s.telemetry, evt, "", payload)
		if s.tuner != nil {
			s.tuner.RecordShadowTrade()
		}
		return false
	}
	return true
}

func (s *ExecutionService) order(leg Leg, side domain.OrderSide, size float64) domain.OrderRequest {
	return domain.OrderRequest{
		MarketID:    leg.MarketID,
		Side:        side,
		Price:       leg.Price,
		Size:        size,
		TimeInForce: s.cfg.TimeInForce,
		OrderType:   s.cfg.OrderType,
	}
}

func (s *ExecutionService) dispatch(ctx context.Context, kind string, legs []domain.OrderRequest) error {
	_, err := executor.PlaceLegs(ctx, s.orders, legs)
	if err == nil {
		s.mu.Lock()
		s.consecutiveErrors = 0
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.consecutiveErrors++
	streak := s.consecutiveErrors
	tripped := !s.halted && streak >= s.cfg.MaxConsecutiveErrors
	if tripped {
		s.halted = true
	}
	s.mu.Unlock()

	s.logger.ErrorContext(ctx, "execution failed",
		slog.String("kind", kind),
		slog.Int("consecutive_errors", streak),
		slog.String("error", err.Error()),
	)
	emit(s.telemetry, domain.EventExecutionError, "", map[string]any{"error": err.Error()})
	if s.tuner != nil {
		s.tuner.RecordExecutionError()
	}

	if !tripped {
		return err
	}

	cause := fmt.Errorf("%w after %d consecutive execution errors: %v", domain.ErrHalted, streak, err)
	s.logger.ErrorContext(ctx, "kill switch engaged",
		slog.Int("consecutive_errors", streak),
		slog.String("error", cause.Error()),
	)
	emit(s.telemetry, domain.EventKillSwitch, "", map[string]any{"consecutiveErrors": streak})
	if s.alerter != nil {
		if aerr := s.alerter.NotifyAll(ctx, "Kill switch engaged", cause.Error()); aerr != nil {
			s.logger.WarnContext(ctx, "kill switch alert failed", slog.String("error", aerr.Error()))
		}
	}
	return err
}
