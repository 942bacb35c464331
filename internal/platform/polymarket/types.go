package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBook is the order book returned by GET /books/{id}. Levels are kept raw
// because they arrive either as tuples or as objects.
type APIBook struct {
	Bids json.RawMessage `json:"bids"`
	Asks json.RawMessage `json:"asks"`
}

// APIOrderRequest is the body of POST /orders.
type APIOrderRequest struct {
	Market        string  `json:"market"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	TimeInForce   string  `json:"time_in_force,omitempty"`
	Type          string  `json:"type,omitempty"`
}

// APIOrderAck is the response to POST /orders. Different deployments name
// the id field differently, so all known spellings are accepted.
type APIOrderAck struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderID"`
	OrderIDAlt  string    `json:"order_id"`
	Status      string    `json:"status"`
	Success     *bool     `json:"success,omitempty"`
	ErrorMsg    string    `json:"errorMsg,omitempty"`
	FilledPrice flexFloat `json:"filled_price"`
	FilledSize  flexFloat `json:"filled_size"`
	Fee         flexFloat `json:"fee"`
}

// ToDomain converts the ack into a domain.OrderAck.
func (a *APIOrderAck) ToDomain() domain.OrderAck {
	id := a.ID
	if id == "" {
		id = a.OrderID
	}
	if id == "" {
		id = a.OrderIDAlt
	}
	status := domain.OrderStatus(strings.ToLower(a.Status))
	if status == "" {
		status = domain.OrderStatusOpen
	}
	if a.FilledSize > 0 && status == domain.OrderStatusOpen {
		status = domain.OrderStatusMatched
	}
	return domain.OrderAck{
		OrderID:     id,
		Status:      status,
		FilledPrice: float64(a.FilledPrice),
		FilledSize:  float64(a.FilledSize),
		FeeUSD:      float64(a.Fee),
		Message:     a.ErrorMsg,
	}
}

// Rejected reports whether the exchange explicitly refused the order.
func (a *APIOrderAck) Rejected() bool {
	return a.Success != nil && !*a.Success
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one row of GET /positions on the data API.
type APIPosition struct {
	Title        string    `json:"title"`
	Outcome      string    `json:"outcome"`
	Size         flexFloat `json:"size"`
	CurPrice     flexFloat `json:"curPrice"`
	CurrentValue flexFloat `json:"currentValue"`
	CashPnL      flexFloat `json:"cashPnl"`
}

// ToDomain converts the row into a domain.Position.
func (p *APIPosition) ToDomain() domain.Position {
	return domain.Position{
		Title:        p.Title,
		Outcome:      p.Outcome,
		Size:         float64(p.Size),
		CurPrice:     float64(p.CurPrice),
		CurrentValue: float64(p.CurrentValue),
		CashPnL:      float64(p.CashPnL),
	}
}
