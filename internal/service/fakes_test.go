package service

import (
	"context"
	"errors"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEmitter) Emit(evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeExchange struct {
	mu        sync.Mutex
	placed    []domain.OrderRequest
	cancelled []string
	fail      map[string]bool
	ack       domain.OrderAck
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.fail[req.MarketID] {
		return domain.OrderAck{}, errors.New("exchange down")
	}
	return f.ack, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeExchange) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type staticControl struct{ state domain.ControlState }

func (s staticControl) State() domain.ControlState { return s.state }

type countingTuner struct {
	mu           sync.Mutex
	shadowTrades int
	errors       int
}

func (c *countingTuner) RecordShadowTrade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shadowTrades++
}

func (c *countingTuner) RecordExecutionError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

type recordingAlerter struct {
	titles []string
}

func (r *recordingAlerter) NotifyAll(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}
