// Package strategy holds single-market strategies that run alongside the
// arbitrage engine on every book update.
package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// Strategy reacts to a book update for one market.
type Strategy interface {
	Name() string
	OnBookUpdate(ctx context.Context, marketID string)
}

// BookProvider resolves the live book of a market.
type BookProvider interface {
	Lookup(marketID string) (*book.OrderBook, bool)
}

// RiskChecker admits or rejects a new order.
type RiskChecker interface {
	CanPlace(marketID string, notional float64, now time.Time) service.RiskDecision
}

// LiveExecutor places live orders under the trader's kill switch.
type LiveExecutor interface {
	Halted() bool
	ExecuteOrder(ctx context.Context, kind string, req domain.OrderRequest) error
}
