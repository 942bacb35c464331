package arbitrage

import (
	"math"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/book"
)

// MultiplierCell holds the adaptive multiplier tuned at runtime.
type MultiplierCell interface {
	Multiplier() float64
	SetMultiplier(m float64)
}

// AdaptiveSpread keeps an exponentially smoothed bid/ask spread per market
// and scales it by a shared multiplier to widen entry thresholds.
type AdaptiveSpread struct {
	alpha             float64
	defaultMultiplier float64

	mu         sync.Mutex
	multiplier float64
	spreads    map[string]float64
}

// NewAdaptiveSpread creates a tracker with smoothing factor alpha and an
// initial multiplier.
func NewAdaptiveSpread(alpha, multiplier float64) *AdaptiveSpread {
	return &AdaptiveSpread{
		alpha:             alpha,
		defaultMultiplier: multiplier,
		multiplier:        multiplier,
		spreads:           make(map[string]float64),
	}
}

// Update folds a new top-of-book reading into the market's smoothed spread.
// Readings with a non-positive side are ignored.
func (a *AdaptiveSpread) Update(marketID string, bid, ask float64) {
	if bid <= 0 || ask <= 0 {
		return
	}
	spreadBps := book.SpreadBps(bid, ask)

	a.mu.Lock()
	defer a.mu.Unlock()
	prev, ok := a.spreads[marketID]
	if !ok {
		prev = spreadBps
	}
	a.spreads[marketID] = prev + a.alpha*(spreadBps-prev)
}

// Smoothed returns the raw smoothed spread in bps.
func (a *AdaptiveSpread) Smoothed(marketID string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.spreads[marketID]
	return v, ok
}

// Bps returns the smoothed spread times the multiplier; 0 for markets
// never updated.
func (a *AdaptiveSpread) Bps(marketID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spreads[marketID] * a.multiplierLocked()
}

// Multiplier returns the current multiplier. A non-finite value is replaced
// by the configured default.
func (a *AdaptiveSpread) Multiplier() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.multiplierLocked()
}

// SetMultiplier replaces the multiplier.
func (a *AdaptiveSpread) SetMultiplier(m float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.multiplier = m
}

func (a *AdaptiveSpread) multiplierLocked() float64 {
	if math.IsNaN(a.multiplier) || math.IsInf(a.multiplier, 0) {
		a.multiplier = a.defaultMultiplier
	}
	return a.multiplier
}
