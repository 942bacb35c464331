package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/book"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"golang.org/x/sync/errgroup"
)

// bootstrapConcurrency bounds parallel snapshot fetches at startup.
const bootstrapConcurrency = 8

// BookFetcher returns the current order book of one market.
type BookFetcher interface {
	GetOrderBook(ctx context.Context, marketID string) (domain.BookSnapshot, error)
}

// BookUpdateFunc is called after a feed message changed a market's book.
type BookUpdateFunc func(ctx context.Context, marketID string)

// MarketDataService owns the local order books and applies feed messages to
// them.
type MarketDataService struct {
	fetcher     BookFetcher
	staleBookMs int64
	now         func() time.Time
	logger      *slog.Logger

	mu    sync.RWMutex
	books map[string]*book.OrderBook

	cbMu      sync.RWMutex
	callbacks []BookUpdateFunc
}

// NewMarketDataService creates a service whose books count as stale once
// they have not been updated for staleBookMs.
func NewMarketDataService(fetcher BookFetcher, staleBookMs int64, logger *slog.Logger) *MarketDataService {
	return &MarketDataService{
		fetcher:     fetcher,
		staleBookMs: staleBookMs,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "market_data")),
		books:       make(map[string]*book.OrderBook),
	}
}

// OnBookUpdate registers a callback fired after every applied feed message.
func (s *MarketDataService) OnBookUpdate(fn BookUpdateFunc) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Book returns the book for marketID, creating an empty one if needed.
func (s *MarketDataService) Book(marketID string) *book.OrderBook {
	s.mu.RLock()
	b, ok := s.books[marketID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.books[marketID]; ok {
		return b
	}
	b = book.New()
	s.books[marketID] = b
	return b
}

// Lookup returns the book for marketID without creating it.
func (s *MarketDataService) Lookup(marketID string) (*book.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[marketID]
	return b, ok
}

// MarketCount returns how many books are tracked.
func (s *MarketDataService) MarketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

// IsStale reports whether a market's book is too old to trade on. Markets
// without a book are stale.
func (s *MarketDataService) IsStale(marketID string) bool {
	b, ok := s.Lookup(marketID)
	if !ok {
		return true
	}
	return b.IsStale(s.staleBookMs, s.now().UnixMilli())
}

// Bootstrap fetches a snapshot for every market concurrently. A failed
// market is logged and skipped; Bootstrap itself only fails if ctx ends.
func (s *MarketDataService) Bootstrap(ctx context.Context, marketIDs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapConcurrency)

	for _, id := range marketIDs {
		g.Go(func() error {
			snap, err := s.fetcher.GetOrderBook(gctx, id)
			if err != nil {
				s.logger.WarnContext(gctx, "snapshot failed",
					slog.String("market_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			s.Book(id).ApplySnapshot(snap.Bids, snap.Asks, s.now().UnixMilli())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// HandleMessage parses a raw feed frame and applies every book message in it.
func (s *MarketDataService) HandleMessage(ctx context.Context, raw []byte) {
	for _, msg := range feed.ParseFrame(raw) {
		s.HandleEnvelope(ctx, msg)
	}
}

// HandleEnvelope applies one normalized message and notifies callbacks.
func (s *MarketDataService) HandleEnvelope(ctx context.Context, msg feed.Message) {
	ts := s.now().UnixMilli()

	switch msg.Kind {
	case feed.KindSnapshot:
		s.Book(msg.Snapshot.MarketID).ApplySnapshot(msg.Snapshot.Bids, msg.Snapshot.Asks, ts)
	case feed.KindDelta:
		d := msg.Delta
		s.Book(d.MarketID).ApplyDelta(d.Side, d.Price, d.Size, ts)
	default:
		return
	}

	s.cbMu.RLock()
	callbacks := s.callbacks
	s.cbMu.RUnlock()

	for _, fn := range callbacks {
		fn(ctx, msg.MarketID())
	}
}
