package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the exchange acknowledgement state.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest is a single order submitted to the exchange.
type OrderRequest struct {
	MarketID      string    `json:"marketId"`
	Side          OrderSide `json:"side"`
	Price         float64   `json:"price"`
	Size          float64   `json:"size"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
	TimeInForce   string    `json:"timeInForce,omitempty"`
	OrderType     string    `json:"orderType,omitempty"`
}

// Notional returns price * size.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Size
}

// OrderAck is the exchange response to a placed order.
type OrderAck struct {
	OrderID     string
	Status      OrderStatus
	FilledPrice float64
	FilledSize  float64
	FeeUSD      float64
	Message     string
}

// Filled reports whether the ack carries an executed quantity.
func (a OrderAck) Filled() bool {
	return a.FilledSize > 0
}

// Fill is an executed trade used by the risk ledger.
type Fill struct {
	MarketID  string
	Side      OrderSide
	Price     float64
	Size      float64
	Fee       float64
	Timestamp time.Time
}
