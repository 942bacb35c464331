package arbitrage

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// Opportunity types reported in telemetry.
const (
	TypeComplementSell = "complement_sell"
	TypeComplementBuy  = "complement_buy"
	TypeCrossMarket    = "cross_market"
)

// OpportunityConfig holds the cost model and order size.
type OpportunityConfig struct {
	FeeBps         float64
	SlippageBps    float64
	LatencyBps     float64
	OrderSize      float64
	AdaptiveSpread bool
}

func (c OpportunityConfig) costBps() float64 {
	return c.FeeBps + c.SlippageBps + c.LatencyBps
}

// BookProvider returns the local book of a market and whether it is too
// old to trade on.
type BookProvider interface {
	Book(marketID string) *book.OrderBook
	IsStale(marketID string) bool
}

// RiskChecker admits or denies an order notional.
type RiskChecker interface {
	CanPlace(marketID string, notional float64, now time.Time) service.RiskDecision
}

// Executor dispatches approved opportunities.
type Executor interface {
	ExecutePair(ctx context.Context, in service.PairExecution)
	ExecuteCross(ctx context.Context, in service.CrossExecution)
}

// OpportunityRecorder receives detection outcomes for auto-tuning.
type OpportunityRecorder interface {
	RecordOpportunity()
	RecordRiskBlock()
}

// OpportunityEngine evaluates complement pairs and equivalence groups each
// time one of their books changes.
type OpportunityEngine struct {
	cfg      OpportunityConfig
	pairs    []domain.ComplementPair
	groups   []domain.EquivalenceGroup
	books    BookProvider
	risk     RiskChecker
	exec     Executor
	adaptive *AdaptiveSpread
	logger   *slog.Logger

	telemetry domain.EventEmitter
	tuner     OpportunityRecorder

	locks keyedMutex
	now   func() time.Time
}

// NewOpportunityEngine creates an engine over the given pairs and groups.
func NewOpportunityEngine(
	cfg OpportunityConfig,
	pairs []domain.ComplementPair,
	groups []domain.EquivalenceGroup,
	books BookProvider,
	risk RiskChecker,
	exec Executor,
	adaptive *AdaptiveSpread,
	logger *slog.Logger,
) *OpportunityEngine {
	return &OpportunityEngine{
		cfg:      cfg,
		pairs:    pairs,
		groups:   groups,
		books:    books,
		risk:     risk,
		exec:     exec,
		adaptive: adaptive,
		logger:   logger.With(slog.String("component", "opportunity_engine")),
		now:      time.Now,
	}
}

// SetTelemetry attaches the event emitter.
func (e *OpportunityEngine) SetTelemetry(em domain.EventEmitter) { e.telemetry = em }

// SetTuner attaches the auto-tuner fed with detection outcomes.
func (e *OpportunityEngine) SetTuner(t OpportunityRecorder) { e.tuner = t }

// Pairs returns the configured complement pairs.
func (e *OpportunityEngine) Pairs() []domain.ComplementPair { return e.pairs }

// Groups returns the configured equivalence groups.
func (e *OpportunityEngine) Groups() []domain.EquivalenceGroup { return e.groups }

// OnBookUpdate evaluates every pair and group that contains marketID. A pair
// with a stale leg is skipped and stale group members are left out.
func (e *OpportunityEngine) OnBookUpdate(ctx context.Context, marketID string) {
	for _, p := range e.pairs {
		if p.Contains(marketID) {
			e.evaluateComplement(ctx, p)
		}
	}
	for _, g := range e.groups {
		if g.Contains(marketID) {
			e.evaluateCrossMarket(ctx, g)
		}
	}
}

func (e *OpportunityEngine) evaluateComplement(ctx context.Context, pair domain.ComplementPair) {
	unlock := e.locks.lock("pair:" + pair.MarketID + "|" + pair.ComplementID)
	defer unlock()

	if e.books.IsStale(pair.MarketID) || e.books.IsStale(pair.ComplementID) {
		return
	}

	bookA := e.books.Book(pair.MarketID)
	bookB := e.books.Book(pair.ComplementID)
	bidA, okBA := bookA.BestBid()
	bidB, okBB := bookB.BestBid()
	askA, okAA := bookA.BestAsk()
	askB, okAB := bookB.BestAsk()
	if !okBA || !okBB || !okAA || !okAB {
		return
	}

	if e.cfg.AdaptiveSpread && e.adaptive != nil {
		e.adaptive.Update(pair.MarketID, bidA.Price, askA.Price)
		e.adaptive.Update(pair.ComplementID, bidB.Price, askB.Price)
	}

	adapt := math.Max(e.adaptBps(pair.MarketID), e.adaptBps(pair.ComplementID))
	threshold := (e.cfg.costBps() + adapt) / 10_000
	size := e.cfg.OrderSize

	var (
		kind   string
		side   domain.OrderSide
		edge   float64
		priceA float64
		priceB float64
	)
	if sellEdge := bidA.Price + bidB.Price - (1 + threshold); sellEdge > 0 {
		kind, side, edge = TypeComplementSell, domain.OrderSideSell, sellEdge
		priceA, priceB = bidA.Price, bidB.Price
	} else if buyEdge := (1 - threshold) - (askA.Price + askB.Price); buyEdge > 0 {
		kind, side, edge = TypeComplementBuy, domain.OrderSideBuy, buyEdge
		priceA, priceB = askA.Price, askB.Price
	} else {
		return
	}

	notional := size * (priceA + priceB)
	if !e.admit(pair.MarketID, notional) {
		return
	}

	e.logger.InfoContext(ctx, "complement arb",
		slog.String("type", kind),
		slog.String("market_id", pair.MarketID),
		slog.String("complement_id", pair.ComplementID),
		slog.Float64("edge", edge),
		slog.Float64("size", size),
	)
	e.emit(domain.EventOpportunity, pair.MarketID, map[string]any{"type": kind, "edge": edge, "size": size})
	if e.tuner != nil {
		e.tuner.RecordOpportunity()
	}

	e.exec.ExecutePair(ctx, service.PairExecution{
		Side: side,
		Size: size,
		LegA: service.Leg{MarketID: pair.MarketID, Price: priceA},
		LegB: service.Leg{MarketID: pair.ComplementID, Price: priceB},
	})
}

func (e *OpportunityEngine) evaluateCrossMarket(ctx context.Context, group domain.EquivalenceGroup) {
	unlock := e.locks.lock("group:" + group.Key)
	defer unlock()

	var bestBid, bestAsk *service.Leg
	for _, id := range group.MarketIDs {
		if e.books.IsStale(id) {
			continue
		}
		b := e.books.Book(id)
		bid, hasBid := b.BestBid()
		ask, hasAsk := b.BestAsk()
		if !hasBid && !hasAsk {
			continue
		}

		if e.cfg.AdaptiveSpread && e.adaptive != nil {
			bidPx, askPx := bid.Price, ask.Price
			if !hasBid {
				bidPx = askPx
			}
			if !hasAsk {
				askPx = bidPx
			}
			e.adaptive.Update(id, bidPx, askPx)
		}

		if hasBid && (bestBid == nil || bid.Price > bestBid.Price) {
			bestBid = &service.Leg{MarketID: id, Price: bid.Price}
		}
		if hasAsk && (bestAsk == nil || ask.Price < bestAsk.Price) {
			bestAsk = &service.Leg{MarketID: id, Price: ask.Price}
		}
	}

	if bestBid == nil || bestAsk == nil || bestBid.MarketID == bestAsk.MarketID {
		return
	}

	adapt := math.Max(e.adaptBps(bestBid.MarketID), e.adaptBps(bestAsk.MarketID))
	thresholdBps := e.cfg.costBps() + adapt
	edge := bestBid.Price - bestAsk.Price - thresholdBps/10_000
	if edge <= 0 {
		return
	}

	size := e.cfg.OrderSize
	notional := size * (bestBid.Price + bestAsk.Price)
	if !e.admit(bestAsk.MarketID, notional) {
		return
	}

	e.logger.InfoContext(ctx, "cross-market arb",
		slog.String("key", group.Key),
		slog.String("buy", bestAsk.MarketID),
		slog.String("sell", bestBid.MarketID),
		slog.Float64("edge", edge),
	)
	e.emit(domain.EventOpportunity, bestAsk.MarketID, map[string]any{
		"type": TypeCrossMarket,
		"edge": edge,
		"buy":  *bestAsk,
		"sell": *bestBid,
	})
	if e.tuner != nil {
		e.tuner.RecordOpportunity()
	}

	e.exec.ExecuteCross(ctx, service.CrossExecution{Buy: *bestAsk, Sell: *bestBid, Size: size})
}

func (e *OpportunityEngine) adaptBps(marketID string) float64 {
	if e.adaptive == nil {
		return 0
	}
	return e.adaptive.Bps(marketID)
}

// admit runs the risk check and reports denials.
func (e *OpportunityEngine) admit(marketID string, notional float64) bool {
	decision := e.risk.CanPlace(marketID, notional, e.now())
	if decision.Allowed {
		return true
	}
	e.emit(domain.EventRiskBlock, marketID, map[string]any{"reason": decision.Reason, "notional": notional})
	if e.tuner != nil {
		e.tuner.RecordRiskBlock()
	}
	return false
}

func (e *OpportunityEngine) emit(typ domain.EventType, marketID string, payload map[string]any) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.Emit(domain.Event{Type: typ, MarketID: marketID, Payload: payload, CreatedAt: e.now().UTC()})
}

// keyedMutex serializes work per key. Keys are pairs and groups, a fixed
// set, so entries are never evicted.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
