package arbitrage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookMap map[string]*book.OrderBook

func (m bookMap) Book(id string) *book.OrderBook {
	b, ok := m[id]
	if !ok {
		b = book.New()
		m[id] = b
	}
	return b
}

func (m bookMap) set(id string, bid, ask float64) {
	var bids, asks []domain.PriceLevel
	if bid > 0 {
		bids = []domain.PriceLevel{{Price: bid, Size: 100}}
	}
	if ask > 0 {
		asks = []domain.PriceLevel{{Price: ask, Size: 100}}
	}
	m.Book(id).ApplySnapshot(bids, asks, 1)
}

// testBooks marks markets stale by id.
type testBooks struct {
	bookMap
	stale map[string]bool
}

func (b testBooks) IsStale(id string) bool { return b.stale[id] }

type stubRisk struct {
	deny     string
	markets  []string
	notional []float64
}

func (s *stubRisk) CanPlace(marketID string, notional float64, _ time.Time) service.RiskDecision {
	s.markets = append(s.markets, marketID)
	s.notional = append(s.notional, notional)
	if s.deny != "" {
		return service.RiskDecision{Reason: s.deny}
	}
	return service.RiskDecision{Allowed: true}
}

type stubExec struct {
	pairs  []service.PairExecution
	crosss []service.CrossExecution
}

func (s *stubExec) ExecutePair(_ context.Context, in service.PairExecution)   { s.pairs = append(s.pairs, in) }
func (s *stubExec) ExecuteCross(_ context.Context, in service.CrossExecution) { s.crosss = append(s.crosss, in) }

type stubRecorder struct{ opportunities, riskBlocks int }

func (s *stubRecorder) RecordOpportunity() { s.opportunities++ }
func (s *stubRecorder) RecordRiskBlock()   { s.riskBlocks++ }

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Emit(e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

var zeroCost = OpportunityConfig{OrderSize: 10}

type harness struct {
	books  testBooks
	risk   *stubRisk
	exec   *stubExec
	tuner  *stubRecorder
	events *eventLog
	engine *OpportunityEngine
}

func newHarness(cfg OpportunityConfig, pairs []domain.ComplementPair, groups []domain.EquivalenceGroup) *harness {
	h := &harness{books: testBooks{bookMap: bookMap{}, stale: map[string]bool{}}, risk: &stubRisk{}, exec: &stubExec{}, tuner: &stubRecorder{}, events: &eventLog{}}
	h.engine = NewOpportunityEngine(cfg, pairs, groups, h.books, h.risk, h.exec, NewAdaptiveSpread(0.2, 1.4), discardLogger())
	h.engine.SetTelemetry(h.events)
	h.engine.SetTuner(h.tuner)
	return h
}

var abPair = []domain.ComplementPair{{MarketID: "A", ComplementID: "B"}}

func TestComplement_SellEdge(t *testing.T) {
	h := newHarness(zeroCost, abPair, nil)
	h.books.set("A", 0.55, 0.57)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "B")

	require.Len(t, h.exec.pairs, 1)
	p := h.exec.pairs[0]
	assert.Equal(t, domain.OrderSideSell, p.Side)
	assert.Equal(t, 10.0, p.Size)
	assert.Equal(t, service.Leg{MarketID: "A", Price: 0.55}, p.LegA)
	assert.Equal(t, service.Leg{MarketID: "B", Price: 0.50}, p.LegB)

	assert.Equal(t, []string{"A"}, h.risk.markets)
	assert.InDelta(t, 10.5, h.risk.notional[0], 1e-9)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, domain.EventOpportunity, h.events.events[0].Type)
	assert.Equal(t, TypeComplementSell, h.events.events[0].Payload["type"])
	assert.InDelta(t, 0.05, h.events.events[0].Payload["edge"].(float64), 1e-9)
	assert.Equal(t, 1, h.tuner.opportunities)
}

func TestComplement_BuyEdge(t *testing.T) {
	h := newHarness(zeroCost, abPair, nil)
	h.books.set("A", 0.40, 0.45)
	h.books.set("B", 0.48, 0.50)

	h.engine.OnBookUpdate(context.Background(), "A")

	require.Len(t, h.exec.pairs, 1)
	p := h.exec.pairs[0]
	assert.Equal(t, domain.OrderSideBuy, p.Side)
	assert.Equal(t, 0.45, p.LegA.Price)
	assert.Equal(t, 0.50, p.LegB.Price)
	assert.InDelta(t, 9.5, h.risk.notional[0], 1e-9)
	assert.Equal(t, TypeComplementBuy, h.events.events[0].Payload["type"])
}

func TestComplement_CostsSuppressEdge(t *testing.T) {
	cfg := OpportunityConfig{FeeBps: 100, SlippageBps: 5, LatencyBps: 5, OrderSize: 10}
	h := newHarness(cfg, abPair, nil)
	// Sum of bids 1.01 is below 1 + 0.011.
	h.books.set("A", 0.51, 0.53)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "A")
	assert.Empty(t, h.exec.pairs)
	assert.Empty(t, h.risk.markets)
}

func TestComplement_NeedsBothSidesOfBothBooks(t *testing.T) {
	h := newHarness(zeroCost, abPair, nil)
	h.books.set("A", 0.55, 0)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "A")
	assert.Empty(t, h.exec.pairs)
}

func TestComplement_RiskBlock(t *testing.T) {
	h := newHarness(zeroCost, abPair, nil)
	h.risk.deny = service.ReasonMarketExposure
	h.books.set("A", 0.55, 0.57)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "A")

	assert.Empty(t, h.exec.pairs)
	require.Len(t, h.events.events, 1)
	evt := h.events.events[0]
	assert.Equal(t, domain.EventRiskBlock, evt.Type)
	assert.Equal(t, "A", evt.MarketID)
	assert.Equal(t, service.ReasonMarketExposure, evt.Payload["reason"])
	assert.Equal(t, 1, h.tuner.riskBlocks)
	assert.Zero(t, h.tuner.opportunities)
}

func TestComplement_AdaptiveRaisesThreshold(t *testing.T) {
	cfg := zeroCost
	cfg.AdaptiveSpread = true
	h := newHarness(cfg, abPair, nil)
	// Spread of A is about 1500 bps; scaled by 1.4 it swamps a 0.05 edge.
	h.books.set("A", 0.55, 0.64)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "A")
	assert.Empty(t, h.exec.pairs)

	_, ok := h.engine.adaptive.Smoothed("A")
	assert.True(t, ok)
	_, ok = h.engine.adaptive.Smoothed("B")
	assert.True(t, ok)
}

func TestCrossMarket(t *testing.T) {
	groups := []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"X", "Y", "Z"}}}
	h := newHarness(zeroCost, nil, groups)
	h.books.set("X", 0.60, 0.62)
	h.books.set("Y", 0.50, 0.55)
	h.books.set("Z", 0, 0.58)

	h.engine.OnBookUpdate(context.Background(), "Y")

	require.Len(t, h.exec.crosss, 1)
	c := h.exec.crosss[0]
	assert.Equal(t, service.Leg{MarketID: "Y", Price: 0.55}, c.Buy)
	assert.Equal(t, service.Leg{MarketID: "X", Price: 0.60}, c.Sell)
	assert.Equal(t, 10.0, c.Size)

	assert.Equal(t, []string{"Y"}, h.risk.markets)
	assert.InDelta(t, 11.5, h.risk.notional[0], 1e-9)

	evt := h.events.events[0]
	assert.Equal(t, TypeCrossMarket, evt.Payload["type"])
	assert.Equal(t, "Y", evt.MarketID)
	assert.InDelta(t, 0.05, evt.Payload["edge"].(float64), 1e-9)
}

func TestCrossMarket_SameMarketOrNoEdge(t *testing.T) {
	groups := []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"X", "Y"}}}

	h := newHarness(zeroCost, nil, groups)
	h.books.set("X", 0.60, 0.40)
	h.books.set("Y", 0.50, 0.55)
	h.engine.OnBookUpdate(context.Background(), "X")
	assert.Empty(t, h.exec.crosss)

	h = newHarness(zeroCost, nil, groups)
	h.books.set("X", 0.50, 0.52)
	h.books.set("Y", 0.49, 0.51)
	h.engine.OnBookUpdate(context.Background(), "X")
	assert.Empty(t, h.exec.crosss)
}

func TestCrossMarket_AdaptiveUpdatesOncePerMarket(t *testing.T) {
	cfg := zeroCost
	cfg.AdaptiveSpread = true
	groups := []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"X", "Y"}}}
	h := newHarness(cfg, nil, groups)
	h.books.set("X", 0.40, 0.60)
	h.books.set("Y", 0.45, 0.55)

	h.engine.OnBookUpdate(context.Background(), "X")

	v, ok := h.engine.adaptive.Smoothed("X")
	require.True(t, ok)
	assert.InDelta(t, 4000, v, 1e-6)
}

func TestOnBookUpdate_UnrelatedMarketIsIgnored(t *testing.T) {
	h := newHarness(zeroCost, abPair, []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"X", "Y"}}})
	h.engine.OnBookUpdate(context.Background(), "nope")
	assert.Empty(t, h.risk.markets)
}

func TestComplement_WorkedExampleWithCosts(t *testing.T) {
	cfg := OpportunityConfig{FeeBps: 10, SlippageBps: 5, LatencyBps: 5, OrderSize: 10}
	h := newHarness(cfg, abPair, nil)
	h.books.set("A", 0.52, 0.54)
	h.books.set("B", 0.50, 0.52)

	h.engine.OnBookUpdate(context.Background(), "A")

	require.Len(t, h.exec.pairs, 1)
	p := h.exec.pairs[0]
	assert.Equal(t, domain.OrderSideSell, p.Side)
	assert.Equal(t, 0.52, p.LegA.Price)
	assert.Equal(t, 0.50, p.LegB.Price)
	assert.InDelta(t, 0.018, h.events.events[0].Payload["edge"].(float64), 1e-9)
}

func TestCrossMarket_WorkedExampleWithCosts(t *testing.T) {
	cfg := OpportunityConfig{FeeBps: 20, SlippageBps: 5, LatencyBps: 5, OrderSize: 10}
	groups := []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"M1", "M2"}}}

	h := newHarness(cfg, nil, groups)
	h.books.set("M1", 0.60, 0.62)
	h.books.set("M2", 0.58, 0.59)
	h.engine.OnBookUpdate(context.Background(), "M2")

	require.Len(t, h.exec.crosss, 1)
	assert.Equal(t, service.Leg{MarketID: "M2", Price: 0.59}, h.exec.crosss[0].Buy)
	assert.Equal(t, service.Leg{MarketID: "M1", Price: 0.60}, h.exec.crosss[0].Sell)
	assert.InDelta(t, 0.007, h.events.events[0].Payload["edge"].(float64), 1e-9)

	// M1 holds both the best bid and the best ask.
	h = newHarness(cfg, nil, groups)
	h.books.set("M1", 0.60, 0.58)
	h.books.set("M2", 0.58, 0.59)
	h.engine.OnBookUpdate(context.Background(), "M2")
	assert.Empty(t, h.exec.crosss)
}

func TestComplement_StaleLegSkipsPair(t *testing.T) {
	h := newHarness(zeroCost, abPair, nil)
	h.books.set("A", 0.55, 0.57)
	h.books.set("B", 0.50, 0.52)
	h.books.stale["B"] = true

	h.engine.OnBookUpdate(context.Background(), "A")

	assert.Empty(t, h.exec.pairs)
	assert.Empty(t, h.risk.markets)
	assert.Empty(t, h.events.events)
}

func TestCrossMarket_StaleMemberExcluded(t *testing.T) {
	groups := []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"X", "Y", "Z"}}}
	h := newHarness(zeroCost, nil, groups)
	h.books.set("X", 0.70, 0.72)
	h.books.set("Y", 0.50, 0.55)
	h.books.set("Z", 0.60, 0.62)
	h.books.stale["X"] = true

	h.engine.OnBookUpdate(context.Background(), "Y")

	require.Len(t, h.exec.crosss, 1)
	assert.Equal(t, "Y", h.exec.crosss[0].Buy.MarketID)
	assert.Equal(t, service.Leg{MarketID: "Z", Price: 0.60}, h.exec.crosss[0].Sell)
}

// blockingExec parks every pair execution until released.
type blockingExec struct {
	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
	entered   chan string
	release   chan struct{}
}

func (b *blockingExec) ExecutePair(_ context.Context, in service.PairExecution) {
	n := b.active.Add(1)
	for {
		m := b.maxActive.Load()
		if n <= m || b.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	b.entered <- in.LegA.MarketID
	<-b.release
	b.active.Add(-1)
	b.calls.Add(1)
}

func (b *blockingExec) ExecuteCross(context.Context, service.CrossExecution) {}

type allowAll struct{}

func (allowAll) CanPlace(string, float64, time.Time) service.RiskDecision {
	return service.RiskDecision{Allowed: true}
}

func TestOnBookUpdate_SerializesPerPair(t *testing.T) {
	books := testBooks{bookMap: bookMap{}, stale: map[string]bool{}}
	for _, id := range []string{"A", "B", "C", "D"} {
		books.set(id, 0.55, 0.57)
	}
	exec := &blockingExec{entered: make(chan string), release: make(chan struct{})}
	pairs := []domain.ComplementPair{{MarketID: "A", ComplementID: "B"}, {MarketID: "C", ComplementID: "D"}}
	engine := NewOpportunityEngine(zeroCost, pairs, nil, books, allowAll{}, exec, nil, discardLogger())

	ctx := context.Background()
	var wg sync.WaitGroup
	update := func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.OnBookUpdate(ctx, id)
		}()
	}

	update("A")
	assert.Equal(t, "A", <-exec.entered)

	// The same pair waits for the first evaluation to finish.
	update("B")
	select {
	case id := <-exec.entered:
		t.Fatalf("pair evaluated concurrently via %s", id)
	case <-time.After(50 * time.Millisecond):
	}

	// A different pair is not held up.
	update("C")
	select {
	case id := <-exec.entered:
		assert.Equal(t, "C", id)
	case <-time.After(time.Second):
		t.Fatal("independent pair blocked")
	}
	exec.release <- struct{}{}

	exec.release <- struct{}{}
	assert.Equal(t, "A", <-exec.entered)
	exec.release <- struct{}{}
	wg.Wait()

	assert.Equal(t, int32(3), exec.calls.Load())
	assert.Equal(t, int32(2), exec.maxActive.Load(), "only distinct pairs overlap")
}
