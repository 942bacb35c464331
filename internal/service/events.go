package service

import (
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// emit sends an event if an emitter is configured.
func emit(em domain.EventEmitter, typ domain.EventType, marketID string, payload map[string]any) {
	if em == nil {
		return
	}
	em.Emit(domain.Event{
		Type:      typ,
		MarketID:  marketID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}
