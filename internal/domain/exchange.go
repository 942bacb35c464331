package domain

import (
	"context"
	"encoding/json"
)

// ExchangeClient is the order-book exchange used by the trader.
type ExchangeClient interface {
	GetOrderBook(ctx context.Context, marketID string) (BookSnapshot, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketLister returns raw market metadata objects. Field names vary between
// API versions, so callers decode what they need.
type MarketLister interface {
	ListMarkets(ctx context.Context) ([]json.RawMessage, error)
}

// PositionsFetcher returns the open positions of a wallet.
type PositionsFetcher interface {
	GetPositions(ctx context.Context, user string, limit int) ([]Position, error)
}
