package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// orderWindow is the length of the order-rate window.
const orderWindow = 60 * time.Second

// Risk denial reasons. They are reported verbatim in risk_block events.
const (
	ReasonDailyLoss      = "Daily loss limit reached"
	ReasonOrderRate      = "Order rate limit reached"
	ReasonMarketExposure = "Market exposure limit reached"
	ReasonTotalExposure  = "Total exposure limit reached"
)

// RiskLimits holds the immutable admission limits.
type RiskLimits struct {
	MaxNotionalPerMarket float64
	MaxTotalExposure     float64
	DailyLossLimit       float64
	MaxOrdersPerMinute   int
}

// RiskState is the mutable ledger tracked by RiskService. Exposure only
// grows: fills add notional and nothing releases it.
type RiskState struct {
	TotalExposure      float64            `json:"totalExposure"`
	DailyPnL           float64            `json:"dailyPnl"`
	OrdersInLastMinute int                `json:"ordersInLastMinute"`
	WindowStart        time.Time          `json:"windowStart"`
	ExposureByMarket   map[string]float64 `json:"exposureByMarket"`
}

// RiskDecision is the outcome of an admission check.
type RiskDecision struct {
	Allowed bool
	Reason  string
}

// RiskService is the stateful admission controller for new trades. It is
// safe for concurrent use.
type RiskService struct {
	limits RiskLimits
	logger *slog.Logger

	mu    sync.Mutex
	state RiskState
}

// NewRiskService creates a RiskService whose order window starts at now.
func NewRiskService(limits RiskLimits, now time.Time, logger *slog.Logger) *RiskService {
	return &RiskService{
		limits: limits,
		logger: logger.With(slog.String("component", "risk_service")),
		state: RiskState{
			WindowStart:      now,
			ExposureByMarket: make(map[string]float64),
		},
	}
}

// CanPlace checks whether a trade of the given notional on marketID is
// admissible. Checks run in a fixed order and the first failure wins:
//  1. daily loss limit
//  2. order rate
//  3. per-market exposure
//  4. total exposure
//
// The only side effect is resetting an elapsed order window.
func (s *RiskService) CanPlace(marketID string, notional float64, now time.Time) RiskDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetWindowLocked(now)

	if s.state.DailyPnL <= -s.limits.DailyLossLimit {
		return RiskDecision{Reason: ReasonDailyLoss}
	}
	if s.state.OrdersInLastMinute >= s.limits.MaxOrdersPerMinute {
		return RiskDecision{Reason: ReasonOrderRate}
	}
	if s.state.ExposureByMarket[marketID]+notional > s.limits.MaxNotionalPerMarket {
		return RiskDecision{Reason: ReasonMarketExposure}
	}
	if s.state.TotalExposure+notional > s.limits.MaxTotalExposure {
		return RiskDecision{Reason: ReasonTotalExposure}
	}
	return RiskDecision{Allowed: true}
}

// RecordOrder counts one order attempt against the rate window.
func (s *RiskService) RecordOrder(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetWindowLocked(now)
	s.state.OrdersInLastMinute++
}

// RecordFill adds the fill notional to total and per-market exposure and
// charges its fee against the daily P&L.
func (s *RiskService) RecordFill(fill domain.Fill) {
	notional := fill.Price * fill.Size

	s.mu.Lock()
	s.state.TotalExposure += notional
	s.state.ExposureByMarket[fill.MarketID] += notional
	s.state.DailyPnL -= fill.Fee
	total, pnl := s.state.TotalExposure, s.state.DailyPnL
	s.mu.Unlock()

	s.logger.Info("fill recorded",
		slog.String("market_id", fill.MarketID),
		slog.Float64("notional", notional),
		slog.Float64("fee", fill.Fee),
		slog.Float64("total_exposure", total),
		slog.Float64("daily_pnl", pnl),
	)
}

// Snapshot returns a copy of the current ledger.
func (s *RiskService) Snapshot() RiskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.ExposureByMarket = make(map[string]float64, len(s.state.ExposureByMarket))
	for k, v := range s.state.ExposureByMarket {
		out.ExposureByMarket[k] = v
	}
	return out
}

// resetWindowLocked starts a new order window once a full minute has passed.
// Caller must hold s.mu.
func (s *RiskService) resetWindowLocked(now time.Time) {
	if now.Sub(s.state.WindowStart) >= orderWindow {
		s.state.WindowStart = now
		s.state.OrdersInLastMinute = 0
	}
}
