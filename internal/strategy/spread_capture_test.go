package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type books map[string]*book.OrderBook

func (b books) Lookup(id string) (*book.OrderBook, bool) {
	ob, ok := b[id]
	return ob, ok
}

type stubRisk struct {
	deny      string
	notionals []float64
}

func (r *stubRisk) CanPlace(_ string, notional float64, _ time.Time) service.RiskDecision {
	r.notionals = append(r.notionals, notional)
	if r.deny != "" {
		return service.RiskDecision{Reason: r.deny}
	}
	return service.RiskDecision{Allowed: true}
}

type stubOrders struct {
	reqs   []domain.OrderRequest
	kinds  []string
	err    error
	halted bool
}

func (o *stubOrders) Halted() bool { return o.halted }

func (o *stubOrders) ExecuteOrder(_ context.Context, kind string, req domain.OrderRequest) error {
	o.reqs = append(o.reqs, req)
	o.kinds = append(o.kinds, kind)
	return o.err
}

type events struct {
	mu  sync.Mutex
	all []domain.Event
}

func (e *events) Emit(evt domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, evt)
}

func (e *events) types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventType, 0, len(e.all))
	for _, evt := range e.all {
		out = append(out, evt.Type)
	}
	return out
}

type control struct{ state domain.ControlState }

func (c control) State() domain.ControlState { return c.state }

func wideBook(bid, ask float64) *book.OrderBook {
	ob := book.New()
	ob.ApplySnapshot(
		[]domain.PriceLevel{{Price: bid, Size: 10}},
		[]domain.PriceLevel{{Price: ask, Size: 10}},
		1,
	)
	return ob
}

var liveCfg = SpreadCaptureConfig{
	SpreadMinBps: 20,
	MinEdgeBps:   5,
	OrderSize:    5,
	Cooldown:     1500 * time.Millisecond,
}

func newCapture(cfg SpreadCaptureConfig, b books, risk *stubRisk, orders *stubOrders, ctl domain.ControlProvider, em *events, now *time.Time) *SpreadCapture {
	s := NewSpreadCapture(cfg, b, risk, orders, ctl, em, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return *now }
	return s
}

func TestSpreadCapture_BuysAtBid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	risk, orders, em := &stubRisk{}, &stubOrders{}, &events{}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, risk, orders, nil, em, &now)

	s.OnBookUpdate(context.Background(), "m")

	require.Len(t, orders.reqs, 1)
	assert.Equal(t, []string{"spread_capture"}, orders.kinds)
	assert.Equal(t, domain.OrderSideBuy, orders.reqs[0].Side)
	assert.Equal(t, 0.40, orders.reqs[0].Price)
	assert.Equal(t, 5.0, orders.reqs[0].Size)
	require.Len(t, risk.notionals, 1)
	assert.InDelta(t, 2.0, risk.notionals[0], 1e-9)
}

func TestSpreadCapture_NarrowSpreadIgnored(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	risk, orders := &stubRisk{}, &stubOrders{}
	s := newCapture(liveCfg, books{"m": wideBook(0.500, 0.5005)}, risk, orders, nil, &events{}, &now)

	s.OnBookUpdate(context.Background(), "m")

	assert.Empty(t, orders.reqs)
	assert.Empty(t, risk.notionals)
}

func TestSpreadCapture_Cooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	orders := &stubOrders{}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{}, orders, nil, &events{}, &now)
	ctx := context.Background()

	s.OnBookUpdate(ctx, "m")
	s.OnBookUpdate(ctx, "m")
	assert.Len(t, orders.reqs, 1)

	now = now.Add(2 * time.Second)
	s.OnBookUpdate(ctx, "m")
	assert.Len(t, orders.reqs, 2)
}

func TestSpreadCapture_RiskBlock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	orders, em := &stubOrders{}, &events{}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{deny: service.ReasonMarketExposure}, orders, nil, em, &now)

	s.OnBookUpdate(context.Background(), "m")

	assert.Empty(t, orders.reqs)
	assert.Equal(t, []domain.EventType{domain.EventRiskBlock}, em.types())
}

func TestSpreadCapture_OrderError(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	em := &events{}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{}, &stubOrders{err: errors.New("rejected")}, nil, em, &now)

	s.OnBookUpdate(context.Background(), "m")

	require.Len(t, em.all, 1)
	assert.Equal(t, domain.EventOrderError, em.all[0].Type)
	assert.Equal(t, "rejected", em.all[0].Payload["error"])
}

func TestSpreadCapture_ShadowAndPaperDoNotTrade(t *testing.T) {
	for name, tc := range map[string]struct {
		cfg  SpreadCaptureConfig
		want domain.EventType
	}{
		"paper":  {cfg: SpreadCaptureConfig{SpreadMinBps: 20, OrderSize: 5, PaperTrading: true, ShadowMode: true}, want: domain.EventPaperTrade},
		"shadow": {cfg: SpreadCaptureConfig{SpreadMinBps: 20, OrderSize: 5, ShadowMode: true}, want: domain.EventShadowTrade},
	} {
		t.Run(name, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0)
			orders, em := &stubOrders{}, &events{}
			s := newCapture(tc.cfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{}, orders, nil, em, &now)

			s.OnBookUpdate(context.Background(), "m")

			assert.Empty(t, orders.reqs)
			assert.Equal(t, []domain.EventType{tc.want}, em.types())
		})
	}
}

func TestSpreadCapture_ControlGate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	orders, em := &stubOrders{}, &events{}
	ctl := control{state: domain.ControlState{Connected: true, Armed: true}}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{}, orders, ctl, em, &now)

	s.OnBookUpdate(context.Background(), "m")

	assert.Empty(t, orders.reqs)
	require.Len(t, em.all, 1)
	assert.Equal(t, service.BlockLiveTradingDisabled, em.all[0].Payload["reason"])
}

func TestRegistry_FansOut(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	orders := &stubOrders{}
	r := NewRegistry()
	r.Register(newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, &stubRisk{}, orders, nil, &events{}, &now))

	assert.Equal(t, []string{"spread_capture"}, r.List())
	_, err := r.Get("missing")
	assert.Error(t, err)

	r.OnBookUpdate(context.Background(), "m")
	assert.Len(t, orders.reqs, 1)
}

func TestSpreadCapture_HaltedDoesNothing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	risk, orders, em := &stubRisk{}, &stubOrders{halted: true}, &events{}
	s := newCapture(liveCfg, books{"m": wideBook(0.40, 0.50)}, risk, orders, nil, em, &now)

	s.OnBookUpdate(context.Background(), "m")

	assert.Empty(t, orders.reqs)
	assert.Empty(t, risk.notionals)
	assert.Empty(t, em.all)
}

type failingPlacer struct {
	mu    sync.Mutex
	calls int
}

func (f *failingPlacer) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.OrderAck{}, errors.New("exchange down")
}

func (f *failingPlacer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSpreadCapture_StopsAfterKillSwitch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	placer := &failingPlacer{}
	exec := service.NewExecutionService(service.ExecutionConfig{MaxConsecutiveErrors: 1}, placer, nil, logger)
	ctl := control{state: domain.ControlState{Connected: true, Armed: true, LiveTrading: true}}
	em := &events{}

	s := NewSpreadCapture(liveCfg, books{"m": wideBook(0.40, 0.60)}, &stubRisk{}, exec, ctl, em, logger)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.OnBookUpdate(ctx, "m")
	require.True(t, exec.Halted())
	assert.Equal(t, 1, exec.ConsecutiveErrors())
	assert.Equal(t, 1, placer.count())
	assert.Equal(t, []domain.EventType{domain.EventOrderError}, em.types())

	now = now.Add(time.Minute)
	s.OnBookUpdate(ctx, "m")
	assert.Equal(t, 1, placer.count(), "no live order after the kill switch")
}
