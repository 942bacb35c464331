package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrOrderRejected  = errors.New("order rejected")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrHalted         = errors.New("trading halted")
	ErrNoControlStore = errors.New("control store not configured")
)
