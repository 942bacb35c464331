package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/google/uuid"
)

// OrderGateway is the part of the exchange the order manager talks to.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderManager tags, records and forwards orders to the exchange.
type OrderManager struct {
	exchange  OrderGateway
	risk      *RiskService
	telemetry domain.EventEmitter
	now       func() time.Time
	logger    *slog.Logger
}

// NewOrderManager creates an order manager. risk and telemetry may be nil.
func NewOrderManager(exchange OrderGateway, risk *RiskService, telemetry domain.EventEmitter, logger *slog.Logger) *OrderManager {
	return &OrderManager{
		exchange:  exchange,
		risk:      risk,
		telemetry: telemetry,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "order_manager")),
	}
}

// PlaceOrder assigns a client order id, counts the order against the rate
// limit and submits it. A filled ack is booked as a fill. Orders without a
// market, with a non-positive size or a price outside (0, 1] are refused
// before anything is recorded.
func (m *OrderManager) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	if req.MarketID == "" || req.Size <= 0 || req.Price <= 0 || req.Price > 1 {
		return domain.OrderAck{}, fmt.Errorf("order_service: %w: market=%q price=%g size=%g",
			domain.ErrInvalidOrder, req.MarketID, req.Price, req.Size)
	}

	now := m.now()
	req.ClientOrderID = clientOrderID(now)

	m.logger.InfoContext(ctx, "placing order",
		slog.String("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.String("client_order_id", req.ClientOrderID),
	)
	emit(m.telemetry, domain.EventOrderAttempt, req.MarketID, map[string]any{
		"marketId":      req.MarketID,
		"side":          req.Side,
		"price":         req.Price,
		"size":          req.Size,
		"timeInForce":   req.TimeInForce,
		"orderType":     req.OrderType,
		"clientOrderId": req.ClientOrderID,
	})

	if m.risk != nil {
		m.risk.RecordOrder(now)
	}

	ack, err := m.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return ack, fmt.Errorf("order_service: place %s: %w", req.ClientOrderID, err)
	}

	if ack.Filled() && m.risk != nil {
		price := ack.FilledPrice
		if price == 0 {
			price = req.Price
		}
		m.risk.RecordFill(domain.Fill{
			MarketID:  req.MarketID,
			Side:      req.Side,
			Price:     price,
			Size:      ack.FilledSize,
			Fee:       ack.FeeUSD,
			Timestamp: m.now(),
		})
	}
	return ack, nil
}

// CancelOrder forwards a cancellation.
func (m *OrderManager) CancelOrder(ctx context.Context, orderID string) error {
	m.logger.InfoContext(ctx, "canceling order", slog.String("order_id", orderID))
	emit(m.telemetry, domain.EventOrderCancel, "", map[string]any{"orderId": orderID})

	if err := m.exchange.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("order_service: cancel %s: %w", orderID, err)
	}
	return nil
}

// clientOrderID returns "bot-<unix ms>-<6 random chars>".
func clientOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("bot-%d-%s", now.UnixMilli(), suffix)
}
