package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveSpread_Smoothing(t *testing.T) {
	a := NewAdaptiveSpread(0.5, 2)

	a.Update("m", 0.49, 0.51) // 400 bps
	v, ok := a.Smoothed("m")
	assert.True(t, ok)
	assert.InDelta(t, 400, v, 1e-9)

	a.Update("m", 0.495, 0.505) // 200 bps
	v, _ = a.Smoothed("m")
	assert.InDelta(t, 300, v, 1e-9)
	assert.InDelta(t, 600, a.Bps("m"), 1e-9)

	a.Update("m", 0, 0.5)
	a.Update("m", 0.5, -1)
	v, _ = a.Smoothed("m")
	assert.InDelta(t, 300, v, 1e-9)

	assert.Zero(t, a.Bps("unknown"))
}

func TestAdaptiveSpread_NonFiniteMultiplierResets(t *testing.T) {
	a := NewAdaptiveSpread(0.2, 1.4)
	a.SetMultiplier(math.NaN())
	assert.Equal(t, 1.4, a.Multiplier())
	a.SetMultiplier(math.Inf(1))
	a.Update("m", 0.4, 0.6)
	v, _ := a.Smoothed("m")
	assert.InDelta(t, v*1.4, a.Bps("m"), 1e-9)
}

func newTestTuner(start float64) (*AutoTuner, *AdaptiveSpread) {
	cell := NewAdaptiveSpread(0.2, start)
	return NewAutoTuner(TunerConfig{Window: 10, Step: 0.05, MinMultiplier: 1.1, MaxMultiplier: 2.5}, cell, discardLogger()), cell
}

func TestAutoTuner_RaisesOnErrors(t *testing.T) {
	tuner, cell := newTestTuner(1.4)
	tuner.RecordExecutionError()
	tuner.RecordExecutionError()
	for i := 0; i < 10; i++ {
		tuner.RecordOpportunity()
	}
	assert.InDelta(t, 1.45, cell.Multiplier(), 1e-9)
	assert.Equal(t, TunerCounters{}, tuner.Counters())
}

func TestAutoTuner_RaisesOnRiskBlocks(t *testing.T) {
	tuner, cell := newTestTuner(2.48)
	for i := 0; i < 4; i++ {
		tuner.RecordRiskBlock()
	}
	for i := 0; i < 10; i++ {
		tuner.RecordOpportunity()
	}
	assert.InDelta(t, 2.5, cell.Multiplier(), 1e-9)
}

func TestAutoTuner_LowersWhenQuiet(t *testing.T) {
	tuner, cell := newTestTuner(1.12)
	for i := 0; i < 7; i++ {
		tuner.RecordShadowTrade()
	}
	for i := 0; i < 10; i++ {
		tuner.RecordOpportunity()
	}
	assert.InDelta(t, 1.1, cell.Multiplier(), 1e-9)
}

func TestAutoTuner_HoldsAndResets(t *testing.T) {
	tuner, cell := newTestTuner(1.4)
	for i := 0; i < 9; i++ {
		tuner.RecordOpportunity()
	}
	assert.Equal(t, 9, tuner.Counters().Opportunities)
	tuner.RecordShadowTrade()
	assert.Equal(t, 1, tuner.Counters().ShadowTrades)

	tuner.RecordOpportunity()
	assert.InDelta(t, 1.4, cell.Multiplier(), 1e-9)
	assert.Equal(t, TunerCounters{}, tuner.Counters())
}

func TestAutoTuner_AdjustsOnAnyRecordOnceWindowReached(t *testing.T) {
	tuner, cell := newTestTuner(1.4)
	for i := 0; i < 9; i++ {
		tuner.RecordOpportunity()
	}
	for i := 0; i < 3; i++ {
		tuner.RecordExecutionError()
	}
	// Window not reached yet: opportunities still 9.
	assert.InDelta(t, 1.4, cell.Multiplier(), 1e-9)
	tuner.RecordOpportunity()
	assert.InDelta(t, 1.45, cell.Multiplier(), 1e-9)
}
