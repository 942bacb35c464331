package arbitrage

import (
	"log/slog"
	"math"
	"sync"
)

// TunerConfig bounds the auto-tuner.
type TunerConfig struct {
	Window        int
	Step          float64
	MinMultiplier float64
	MaxMultiplier float64
}

// TunerCounters are the outcomes seen since the last adjustment.
type TunerCounters struct {
	Opportunities   int `json:"opportunities"`
	RiskBlocks      int `json:"riskBlocks"`
	ExecutionErrors int `json:"executionErrors"`
	ShadowTrades    int `json:"shadowTrades"`
}

// AutoTuner nudges the adaptive multiplier up when trading goes badly and
// down when it is quiet, once every Window opportunities.
type AutoTuner struct {
	cfg    TunerConfig
	target MultiplierCell
	logger *slog.Logger

	mu       sync.Mutex
	counters TunerCounters
}

// NewAutoTuner creates a tuner that adjusts target.
func NewAutoTuner(cfg TunerConfig, target MultiplierCell, logger *slog.Logger) *AutoTuner {
	return &AutoTuner{
		cfg:    cfg,
		target: target,
		logger: logger.With(slog.String("component", "auto_tuner")),
	}
}

// RecordOpportunity counts a detected opportunity and may close the window.
func (t *AutoTuner) RecordOpportunity() {
	t.record(func(c *TunerCounters) { c.Opportunities++ })
}

// RecordRiskBlock counts an opportunity denied by risk.
func (t *AutoTuner) RecordRiskBlock() {
	t.record(func(c *TunerCounters) { c.RiskBlocks++ })
}

// RecordExecutionError counts a failed live execution.
func (t *AutoTuner) RecordExecutionError() {
	t.record(func(c *TunerCounters) { c.ExecutionErrors++ })
}

// RecordShadowTrade counts a simulated trade.
func (t *AutoTuner) RecordShadowTrade() {
	t.record(func(c *TunerCounters) { c.ShadowTrades++ })
}

// Counters returns the current window's counts.
func (t *AutoTuner) Counters() TunerCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

func (t *AutoTuner) record(inc func(*TunerCounters)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	inc(&t.counters)
	t.maybeAdjustLocked()
}

func (t *AutoTuner) maybeAdjustLocked() {
	c := t.counters
	if c.Opportunities < t.cfg.Window || c.Opportunities == 0 {
		return
	}

	n := float64(c.Opportunities)
	errorRate := float64(c.ExecutionErrors) / n
	riskRate := float64(c.RiskBlocks) / n
	shadowRate := float64(c.ShadowTrades) / n

	m := t.target.Multiplier()
	switch {
	case errorRate > 0.1 || riskRate > 0.3:
		m = math.Min(m+t.cfg.Step, t.cfg.MaxMultiplier)
	case shadowRate > 0.6 && errorRate < 0.05:
		m = math.Max(m-t.cfg.Step, t.cfg.MinMultiplier)
	}
	t.target.SetMultiplier(m)

	t.logger.Info("auto-tuner adjust",
		slog.Float64("multiplier", m),
		slog.Float64("error_rate", errorRate),
		slog.Float64("risk_rate", riskRate),
		slog.Float64("shadow_rate", shadowRate),
	)

	t.counters = TunerCounters{}
}
