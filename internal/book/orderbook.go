// Package book holds the in-memory per-market order book.
package book

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// OrderBook is a two-sided price ladder for a single market. Levels with a
// non-positive size are never stored. It is safe for concurrent use.
type OrderBook struct {
	mu         sync.RWMutex
	bids       map[float64]float64
	asks       map[float64]float64
	lastUpdate int64 // unix ms
}

// New returns an empty book.
func New() *OrderBook {
	return &OrderBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// ApplySnapshot replaces both sides of the book and sets the update time to
// ts. Callers are expected to have filtered non-finite values.
func (b *OrderBook) ApplySnapshot(bids, asks []domain.PriceLevel, ts int64) {
	nextBids := make(map[float64]float64, len(bids))
	for _, l := range bids {
		if l.Size > 0 {
			nextBids[l.Price] = l.Size
		}
	}
	nextAsks := make(map[float64]float64, len(asks))
	for _, l := range asks {
		if l.Size > 0 {
			nextAsks[l.Price] = l.Size
		}
	}

	b.mu.Lock()
	b.bids = nextBids
	b.asks = nextAsks
	b.lastUpdate = ts
	b.mu.Unlock()
}

// ApplyDelta upserts (size > 0) or removes (size <= 0) a single level. The
// update time only moves forward.
func (b *OrderBook) ApplyDelta(side domain.BookSide, price, size float64, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.bids
	if side == domain.SideAsks {
		levels = b.asks
	}
	if size <= 0 {
		delete(levels, price)
	} else {
		levels[price] = size
	}
	if ts > b.lastUpdate {
		b.lastUpdate = ts
	}
}

// BestBid returns the highest bid, or false when there are no bids.
func (b *OrderBook) BestBid() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return extreme(b.bids, func(p, best float64) bool { return p > best })
}

// BestAsk returns the lowest ask, or false when there are no asks.
func (b *OrderBook) BestAsk() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return extreme(b.asks, func(p, best float64) bool { return p < best })
}

// IsStale reports whether more than maxAgeMs elapsed between the last update
// and now.
func (b *OrderBook) IsStale(maxAgeMs, now int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return now-b.lastUpdate > maxAgeMs
}

// LastUpdate returns the time of the latest applied change in unix ms.
func (b *OrderBook) LastUpdate() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// Depth returns a sorted copy of one side: bids descending, asks ascending.
func (b *OrderBook) Depth(side domain.BookSide) []domain.PriceLevel {
	b.mu.RLock()
	levels := b.bids
	if side == domain.SideAsks {
		levels = b.asks
	}
	out := make([]domain.PriceLevel, 0, len(levels))
	for p, s := range levels {
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	b.mu.RUnlock()

	if side == domain.SideAsks {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	}
	return out
}

func extreme(levels map[float64]float64, better func(p, best float64) bool) (domain.PriceLevel, bool) {
	var (
		best  domain.PriceLevel
		found bool
	)
	for p, s := range levels {
		if !found || better(p, best.Price) {
			best = domain.PriceLevel{Price: p, Size: s}
			found = true
		}
	}
	return best, found
}

// SpreadBps returns (ask-bid)/mid in basis points, or 0 when mid ≤ 0.
func SpreadBps(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid * 10_000
}
