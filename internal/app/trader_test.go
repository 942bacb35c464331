package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildUniverse(t *testing.T) {
	cfg := config.Defaults()
	cfg.Markets.ComplementPairs = "m1:m2, bad, m3:m4"

	discovered := arbitrage.Discovery{
		Pairs:     []domain.ComplementPair{{MarketID: "t1", ComplementID: "t2"}},
		Groups:    []domain.EquivalenceGroup{{Key: "q", MarketIDs: []string{"g1", "g2"}}},
		MarketIDs: []string{"g1", "g2", "m1"},
	}

	u := BuildUniverse(&cfg, []string{"s1", "m2"}, discovered)
	assert.Equal(t, []string{"s1", "m2", "m1", "m3", "m4", "t1", "t2", "g1", "g2"}, u.MarketIDs)
	assert.Equal(t, []domain.ComplementPair{
		{MarketID: "m1", ComplementID: "m2"},
		{MarketID: "m3", ComplementID: "m4"},
		{MarketID: "t1", ComplementID: "t2"},
	}, u.Pairs)
	assert.Len(t, u.Groups, 1)

	cfg.Markets.AutoDiscoverPairs = false
	cfg.Markets.CrossMarket = false
	u = BuildUniverse(&cfg, nil, discovered)
	assert.Len(t, u.Pairs, 2)
	assert.Empty(t, u.Groups)
	assert.Contains(t, u.MarketIDs, "t1", "discovered ids still join the feed")
}

func newTestTrader(t *testing.T, cfg config.Config) *Trader {
	t.Helper()
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"100","question":"Will it rain?","clobTokenIds":["a","b"]}]`)
	}))
	t.Cleanup(gamma.Close)

	logger := discardLogger()
	deps := &Dependencies{
		Clob:     polymarket.NewClobClient(gamma.URL),
		Gamma:    polymarket.NewGammaClient(gamma.URL),
		Data:     polymarket.NewDataClient(gamma.URL),
		Notifier: notify.NewNotifier(nil, nil, logger),
		Metrics:  metrics.New(),
		Health:   map[string]handler.Pinger{},
	}

	tr, err := NewTrader(context.Background(), &cfg, deps, logger)
	require.NoError(t, err)
	return tr
}

func snapshot(id string, bid, ask float64) feed.Message {
	return feed.Message{Kind: feed.KindSnapshot, Snapshot: domain.BookSnapshot{
		MarketID: id,
		Bids:     []domain.PriceLevel{{Price: bid, Size: 100}},
		Asks:     []domain.PriceLevel{{Price: ask, Size: 100}},
	}}
}

func TestNewTraderUniverseAndStatus(t *testing.T) {
	tr := newTestTrader(t, config.Defaults())

	assert.Equal(t, []string{"100", "a", "b"}, tr.universe.MarketIDs)
	assert.Equal(t, []domain.ComplementPair{{MarketID: "a", ComplementID: "b"}}, tr.universe.Pairs)

	st, ok := tr.Status().(Status)
	require.True(t, ok)
	assert.Equal(t, "shadow", st.Mode)
	assert.False(t, st.Halted)
	assert.False(t, st.Control.Connected, "no control store means disconnected")
	assert.Equal(t, 1.4, st.Multiplier)
	require.NotNil(t, st.Tuner)
	assert.Equal(t, 3, st.Markets)
}

func TestTraderBookUpdateDrivesDetection(t *testing.T) {
	tr := newTestTrader(t, config.Defaults())
	ctx := context.Background()

	tr.marketData.HandleEnvelope(ctx, snapshot("a", 0.39, 0.40))
	tr.marketData.HandleEnvelope(ctx, snapshot("b", 0.39, 0.40))

	st := tr.Status().(Status)
	assert.Equal(t, 1, st.Tuner.Opportunities)
	assert.Equal(t, 0, st.ConsecutiveErrors)
}

func TestTraderSkipsStaleBooks(t *testing.T) {
	cfg := config.Defaults()
	tr := newTestTrader(t, cfg)
	ctx := context.Background()

	tr.marketData.HandleEnvelope(ctx, snapshot("a", 0.39, 0.40))
	// An unknown market is stale; its callback must not reach the engine.
	tr.onBookUpdate(ctx, "zzz")

	assert.Equal(t, 0, tr.Status().(Status).Tuner.Opportunities)
}

func TestTraderSkipsPairWithStalePartner(t *testing.T) {
	tr := newTestTrader(t, config.Defaults())
	ctx := context.Background()

	old := time.Now().Add(-10 * time.Minute).UnixMilli()
	tr.marketData.Book("b").ApplySnapshot(
		[]domain.PriceLevel{{Price: 0.39, Size: 100}},
		[]domain.PriceLevel{{Price: 0.40, Size: 100}},
		old,
	)
	require.True(t, tr.marketData.IsStale("b"))

	tr.marketData.HandleEnvelope(ctx, snapshot("a", 0.39, 0.40))
	require.False(t, tr.marketData.IsStale("a"))

	assert.Equal(t, 0, tr.Status().(Status).Tuner.Opportunities)
}

func TestHeartbeatPayload(t *testing.T) {
	tr := newTestTrader(t, config.Defaults())

	p := tr.heartbeatPayload()
	assert.Equal(t, false, p["armed"])
	assert.Equal(t, true, p["shadow_mode"])
	assert.Equal(t, true, p["paper_trading"])
	assert.Equal(t, 3, p["markets"])
	assert.Equal(t, 1, p["pairs"])
	assert.Equal(t, false, p["halted"])
	assert.Equal(t, 1.4, p["multiplier"])
}

func TestNewTraderRejectsBadPayload(t *testing.T) {
	cfg := config.Defaults()
	cfg.Polymarket.SubscribePayload = "{"

	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer gamma.Close()

	logger := discardLogger()
	deps := &Dependencies{
		Clob:     polymarket.NewClobClient(gamma.URL),
		Gamma:    polymarket.NewGammaClient(gamma.URL),
		Data:     polymarket.NewDataClient(gamma.URL),
		Notifier: notify.NewNotifier(nil, nil, logger),
		Metrics:  metrics.New(),
	}
	_, err := NewTrader(context.Background(), &cfg, deps, logger)
	assert.Error(t, err)
}
