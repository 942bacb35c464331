package domain

import "time"

// EventType enumerates the telemetry events emitted by the trader.
type EventType string

const (
	EventControlState      EventType = "control_state"
	EventControlBlock      EventType = "control_block"
	EventOpportunity       EventType = "opportunity"
	EventRiskBlock         EventType = "risk_block"
	EventShadowTrade       EventType = "shadow_trade"
	EventPaperTrade        EventType = "paper_trade"
	EventOrderAttempt      EventType = "order_attempt"
	EventOrderCancel       EventType = "order_cancel"
	EventOrderError        EventType = "order_error"
	EventExecutionError    EventType = "execution_error"
	EventKillSwitch        EventType = "kill_switch"
	EventPositionsSnapshot EventType = "positions_snapshot"
	EventFundsInsufficient EventType = "funds_insufficient"
	EventHeartbeat         EventType = "heartbeat"
	EventTraderStarted     EventType = "trader_started"
)

// Event is a single fire-and-forget telemetry record.
type Event struct {
	Type      EventType      `json:"event_type"`
	MarketID  string         `json:"market_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventEmitter accepts telemetry events. Implementations must not block the
// caller on I/O.
type EventEmitter interface {
	Emit(evt Event)
}
