package domain

import "time"

// ControlRecord is one row of operator control flags.
type ControlRecord struct {
	ID          int64
	Armed       bool
	LiveTrading bool
	UpdatedAt   time.Time
}

// ControlState is the trader's current view of the operator flags.
// Connected is false whenever the latest refresh failed.
type ControlState struct {
	Armed       bool      `json:"armed"`
	LiveTrading bool      `json:"liveTrading"`
	Connected   bool      `json:"connected"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Payload renders the state for telemetry.
func (s ControlState) Payload() map[string]any {
	return map[string]any{
		"armed":       s.Armed,
		"liveTrading": s.LiveTrading,
		"connected":   s.Connected,
	}
}

// ControlProvider exposes the latest control state.
type ControlProvider interface {
	State() ControlState
}
