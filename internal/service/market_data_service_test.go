package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBookFetcher struct {
	mu    sync.Mutex
	books map[string]domain.BookSnapshot
	calls []string
}

func (f *fakeBookFetcher) GetOrderBook(_ context.Context, marketID string) (domain.BookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, marketID)
	snap, ok := f.books[marketID]
	if !ok {
		return domain.BookSnapshot{}, errors.New("boom")
	}
	return snap, nil
}

func newTestMarketData(fetcher BookFetcher, now *time.Time) *MarketDataService {
	s := NewMarketDataService(fetcher, 1500, discardLogger())
	s.now = func() time.Time { return *now }
	return s
}

func TestMarketDataService_BootstrapSkipsFailures(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	fetcher := &fakeBookFetcher{books: map[string]domain.BookSnapshot{
		"a": {MarketID: "a", Bids: []domain.PriceLevel{{Price: 0.4, Size: 1}}, Asks: []domain.PriceLevel{{Price: 0.6, Size: 2}}},
	}}
	s := newTestMarketData(fetcher, &now)

	var fired int
	s.OnBookUpdate(func(context.Context, string) { fired++ })

	require.NoError(t, s.Bootstrap(context.Background(), []string{"a", "b"}))

	assert.ElementsMatch(t, []string{"a", "b"}, fetcher.calls)
	bid, ok := s.Book("a").BestBid()
	require.True(t, ok)
	assert.Equal(t, 0.4, bid.Price)
	assert.Equal(t, now.UnixMilli(), s.Book("a").LastUpdate())

	_, ok = s.Lookup("b")
	assert.False(t, ok)
	assert.Zero(t, fired)
}

func TestMarketDataService_HandleMessage(t *testing.T) {
	now := time.UnixMilli(5_000)
	s := newTestMarketData(&fakeBookFetcher{}, &now)

	var updated []string
	s.OnBookUpdate(func(_ context.Context, id string) { updated = append(updated, id) })

	ctx := context.Background()
	s.HandleMessage(ctx, []byte(`{"type":"book_snapshot","marketId":"m","bids":[[0.4,1],["0.41","2"]],"asks":[{"price":0.6,"size":1}]}`))
	s.HandleMessage(ctx, []byte(`{"channel":"book","type":"delta","market":"m","side":"asks","price":0.55,"size":3}`))
	s.HandleMessage(ctx, []byte(`{"type":"trade","marketId":"m"}`))
	s.HandleMessage(ctx, []byte(`garbage`))

	assert.Equal(t, []string{"m", "m"}, updated)

	bid, _ := s.Book("m").BestBid()
	ask, _ := s.Book("m").BestAsk()
	assert.Equal(t, 0.41, bid.Price)
	assert.Equal(t, 0.55, ask.Price)
}

func TestMarketDataService_IsStale(t *testing.T) {
	now := time.UnixMilli(10_000)
	s := newTestMarketData(&fakeBookFetcher{}, &now)

	assert.True(t, s.IsStale("unknown"))

	s.HandleMessage(context.Background(), []byte(`{"type":"book_snapshot","marketId":"m","bids":[[0.4,1]],"asks":[]}`))
	assert.False(t, s.IsStale("m"))

	now = now.Add(1500 * time.Millisecond)
	assert.False(t, s.IsStale("m"))

	now = now.Add(time.Millisecond)
	assert.True(t, s.IsStale("m"))
}

func TestMarketDataService_BookIsShared(t *testing.T) {
	now := time.Now()
	s := newTestMarketData(&fakeBookFetcher{}, &now)
	assert.Same(t, s.Book("x"), s.Book("x"))
	assert.Equal(t, 1, s.MarketCount())
}
