package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/alanyoungcy/polyarb/internal/strategy"
	"github.com/alanyoungcy/polyarb/internal/telemetry"
)

// instanceLockKey guards a live account against a second trader.
const instanceLockKey = "polyarb:trader"

// Trader owns the assembled trading pipeline: market data, opportunity
// detection, execution and the periodic control, positions and heartbeat
// loops.
type Trader struct {
	cfg    *config.Config
	deps   *Dependencies
	logger *slog.Logger

	recorder   *telemetry.Recorder
	marketData *service.MarketDataService
	risk       *service.RiskService
	execution  *service.ExecutionService
	control    *service.ControlService
	positions  *service.PositionsService
	engine     *arbitrage.OpportunityEngine
	adaptive   *arbitrage.AdaptiveSpread
	tuner      *arbitrage.AutoTuner
	strategies *strategy.Registry

	universe Universe
	payload  any
	started  time.Time
}

// Universe is the set of markets, pairs and groups the trader watches.
type Universe struct {
	MarketIDs []string
	Pairs     []domain.ComplementPair
	Groups    []domain.EquivalenceGroup
}

// BuildUniverse merges the selected markets with manual and discovered pairs.
// Discovered pairs are only traded with auto-discovery on, and groups only
// with cross-market on; discovered market ids always join the feed.
func BuildUniverse(cfg *config.Config, selected []string, discovered arbitrage.Discovery) Universe {
	manual := arbitrage.ParseComplementPairs(cfg.Markets.ComplementPairs)

	pairIDs := service.MergeUniverse(service.PairMarketIDs(manual), service.PairMarketIDs(discovered.Pairs))
	u := Universe{
		MarketIDs: service.MergeUniverse(selected, pairIDs, discovered.MarketIDs),
		Pairs:     manual,
	}
	if cfg.Markets.AutoDiscoverPairs {
		u.Pairs = append(append([]domain.ComplementPair(nil), manual...), discovered.Pairs...)
	}
	if cfg.Markets.CrossMarket {
		u.Groups = discovered.Groups
	}
	return u
}

// NewTrader selects the market universe and wires every service. It fails
// on configuration problems and when the initial market list cannot be
// loaded; discovery failures only log.
func NewTrader(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*Trader, error) {
	t := &Trader{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "trader")),
	}

	t.recorder = telemetry.NewRecorder(t.sinks(), cfg.Telemetry.BufferSize, logger)
	t.recorder.SetObserver(deps.Metrics)

	// Universe.
	selected, err := service.NewMarketSelector(deps.Gamma, logger).Select(ctx, cfg.Markets.IDs)
	if err != nil {
		return nil, fmt.Errorf("app: select markets: %w", err)
	}
	var discovered arbitrage.Discovery
	if cfg.Markets.AutoDiscoverPairs || cfg.Markets.CrossMarket {
		discovered, err = arbitrage.NewPairDiscovery(deps.Gamma, logger).Discover(ctx)
		if err != nil {
			t.logger.WarnContext(ctx, "gamma discovery failed", slog.String("error", err.Error()))
			discovered = arbitrage.Discovery{}
		}
	}
	t.universe = BuildUniverse(cfg, selected, discovered)

	t.payload, err = subscribePayload(cfg, t.universe.MarketIDs)
	if err != nil {
		return nil, err
	}

	// Control and positions.
	var controlStore domain.ControlStore
	if deps.ControlStore != nil {
		controlStore = deps.ControlStore
	}
	t.control = service.NewControlService(controlStore, cfg.Control.PollInterval.Duration, t.recorder, logger)
	t.positions = service.NewPositionsService(service.PositionsConfig{
		User:           cfg.Positions.User,
		Limit:          cfg.Positions.Limit,
		PollInterval:   cfg.Positions.PollInterval.Duration,
		MinBalanceUSDC: cfg.Positions.MinBalanceUSDC,
	}, deps.Data, t.control, t.recorder, logger)

	// Risk, orders and execution.
	t.risk = service.NewRiskService(service.RiskLimits{
		MaxNotionalPerMarket: cfg.Risk.MaxNotionalPerMarket,
		MaxTotalExposure:     cfg.Risk.MaxTotalExposure,
		DailyLossLimit:       cfg.Risk.DailyLossLimit,
		MaxOrdersPerMinute:   cfg.Risk.MaxOrdersPerMinute,
	}, time.Now(), logger)
	orders := service.NewOrderManager(deps.Clob, t.risk, t.recorder, logger)

	orderType := cfg.Trading.OrderType
	if orderType == "" && cfg.Trading.TimeInForce != "" {
		orderType = "limit"
	}
	t.execution = service.NewExecutionService(service.ExecutionConfig{
		PaperTrading:         cfg.Trading.PaperTrading,
		ShadowMode:           cfg.Trading.ShadowMode,
		TimeInForce:          cfg.Trading.TimeInForce,
		OrderType:            orderType,
		MaxConsecutiveErrors: cfg.Trading.MaxConsecutiveErrors,
	}, orders, t.recorder, logger)
	t.execution.SetControl(t.control)
	if deps.Notifier.Enabled() {
		t.execution.SetAlerter(deps.Notifier)
	}

	// Market data and detection.
	t.marketData = service.NewMarketDataService(deps.Clob, cfg.Trading.StaleBook.Milliseconds(), logger)

	t.adaptive = arbitrage.NewAdaptiveSpread(cfg.Adaptive.Alpha, cfg.Adaptive.Multiplier)
	t.engine = arbitrage.NewOpportunityEngine(arbitrage.OpportunityConfig{
		FeeBps:         cfg.Trading.FeeBps,
		SlippageBps:    cfg.Trading.SlippageBps,
		LatencyBps:     cfg.Trading.LatencyBps,
		OrderSize:      cfg.Trading.OrderSize,
		AdaptiveSpread: cfg.Adaptive.Enabled,
	}, t.universe.Pairs, t.universe.Groups, t.marketData, t.risk, t.execution, t.adaptive, logger)
	t.engine.SetTelemetry(t.recorder)

	if cfg.Tuner.Enabled {
		t.tuner = arbitrage.NewAutoTuner(arbitrage.TunerConfig{
			Window:        cfg.Tuner.Window,
			Step:          cfg.Tuner.Step,
			MinMultiplier: cfg.Tuner.MinMultiplier,
			MaxMultiplier: cfg.Tuner.MaxMultiplier,
		}, t.adaptive, logger)
		t.engine.SetTuner(t.tuner)
		t.execution.SetTuner(t.tuner)
	}

	t.strategies = strategy.NewRegistry()
	if cfg.Spread.Enabled {
		t.strategies.Register(strategy.NewSpreadCapture(strategy.SpreadCaptureConfig{
			SpreadMinBps: cfg.Spread.SpreadMinBps,
			MinEdgeBps:   cfg.Spread.MinEdgeBps,
			OrderSize:    cfg.Trading.OrderSize,
			Cooldown:     cfg.Spread.Cooldown.Duration,
			PaperTrading: cfg.Trading.PaperTrading,
			ShadowMode:   cfg.Trading.ShadowMode,
		}, t.marketData, t.risk, t.execution, t.control, t.recorder, logger))
	}

	t.marketData.OnBookUpdate(t.onBookUpdate)

	deps.Metrics.SetMarkets(len(t.universe.MarketIDs))
	deps.Metrics.SetMultiplier(t.adaptive.Multiplier())
	return t, nil
}

// onBookUpdate runs detection for a fresh book. Stale books never feed
// decisions.
func (t *Trader) onBookUpdate(ctx context.Context, marketID string) {
	t.deps.Metrics.ObserveBookUpdate()
	if t.marketData.IsStale(marketID) {
		return
	}
	t.engine.OnBookUpdate(ctx, marketID)
	t.strategies.OnBookUpdate(ctx, marketID)
}

// sinks lists the telemetry sinks for the configured backends.
func (t *Trader) sinks() []telemetry.Sink {
	sinks := []telemetry.Sink{
		telemetry.NewLogSink(func(ctx context.Context, evt domain.Event) {
			t.logger.DebugContext(ctx, "telemetry",
				slog.String("event_type", string(evt.Type)),
				slog.String("market_id", evt.MarketID),
			)
		}),
		t.deps.Metrics,
	}
	if t.deps.EventStore != nil {
		sinks = append(sinks, t.deps.EventStore)
	}
	if t.deps.SignalBus != nil {
		sinks = append(sinks, t.deps.SignalBus)
	}
	if t.deps.Archiver != nil {
		sinks = append(sinks, t.deps.Archiver)
	}
	if t.deps.Notifier.Enabled() {
		sinks = append(sinks, telemetry.NewNotifySink(t.deps.Notifier))
	}
	return sinks
}

// Run bootstraps the books, subscribes to the feed and runs every loop until
// ctx is cancelled or one of them fails. Telemetry keeps draining until the
// other loops have stopped.
func (t *Trader) Run(ctx context.Context) error {
	stopTelemetry := t.startTelemetry(ctx)
	defer stopTelemetry()

	if t.cfg.Live() && t.deps.LockManager != nil {
		lock, err := t.deps.LockManager.Acquire(ctx, instanceLockKey, t.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: instance lock: %w", err)
		}
		defer lock.Release()

		var stop context.CancelFunc
		ctx, stop = t.keepLock(ctx, lock)
		defer stop()
	}

	if err := t.marketData.Bootstrap(ctx, t.universe.MarketIDs); err != nil {
		return fmt.Errorf("app: bootstrap books: %w", err)
	}

	t.started = time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return t.control.Run(gctx) })
	g.Go(func() error { return t.positions.Run(gctx) })

	ws := polymarket.NewWSClient(t.cfg.Polymarket.WSURL, nil, t.logger)
	runner := feed.NewRunner(ws, t.payload, func(msg feed.Message) {
		t.marketData.HandleEnvelope(gctx, msg)
	}, t.logger)
	g.Go(func() error { return runner.Run(gctx) })

	g.Go(func() error { return t.heartbeat(gctx) })

	if t.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Addr:      t.cfg.Server.Addr,
			APIKey:    t.cfg.Server.APIKey,
			RateLimit: t.cfg.Server.RateLimit,
		}, t.handlers(), t.deps.RateLimiter, t.logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	t.logger.InfoContext(ctx, "trader started",
		slog.Int("markets", len(t.universe.MarketIDs)),
		slog.Int("pairs", len(t.universe.Pairs)),
		slog.Int("groups", len(t.universe.Groups)),
		slog.String("mode", t.execution.Mode()),
	)
	t.emit(domain.EventTraderStarted, map[string]any{"markets": t.universe.MarketIDs})

	if err := g.Wait(); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, domain.ErrLockHeld) {
		return fmt.Errorf("app: %w", cause)
	}
	return nil
}

// startTelemetry runs the recorder and the archiver on a context detached
// from ctx. The returned func stops the recorder first so its final events
// still reach the archive, then the archiver.
func (t *Trader) startTelemetry(ctx context.Context) func() {
	base := context.WithoutCancel(ctx)

	recCtx, stopRec := context.WithCancel(base)
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		_ = t.recorder.Run(recCtx)
	}()

	archCtx, stopArch := context.WithCancel(base)
	archDone := make(chan struct{})
	go func() {
		defer close(archDone)
		if t.deps.Archiver != nil {
			_ = t.deps.Archiver.Run(archCtx)
		}
	}()

	return func() {
		stopRec()
		<-recDone
		stopArch()
		<-archDone
	}
}

// keepLock refreshes lock every third of its TTL. The returned context is
// cancelled with domain.ErrLockHeld when the lock is lost.
func (t *Trader) keepLock(ctx context.Context, lock domain.Lock) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	ttl := t.cfg.Redis.LockTTL.Duration

	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lock.Refresh(ctx, ttl)
				if err == nil {
					continue
				}
				if errors.Is(err, domain.ErrLockHeld) {
					t.logger.ErrorContext(ctx, "instance lock lost, stopping")
					cancel(err)
					return
				}
				t.logger.WarnContext(ctx, "instance lock refresh failed", slog.String("error", err.Error()))
			}
		}
	}()
	return ctx, func() { cancel(nil) }
}

// heartbeat emits the trader state on every tick and refreshes the gauges.
func (t *Trader) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Telemetry.Heartbeat.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.emit(domain.EventHeartbeat, t.heartbeatPayload())
			t.deps.Metrics.SetMultiplier(t.adaptive.Multiplier())
			t.deps.Metrics.SetExposure(t.risk.Snapshot().TotalExposure)
		}
	}
}

func (t *Trader) heartbeatPayload() map[string]any {
	control := t.control.State()
	return map[string]any{
		"armed":         control.Armed,
		"live_trading":  control.LiveTrading,
		"shadow_mode":   t.cfg.Trading.ShadowMode,
		"paper_trading": t.cfg.Trading.PaperTrading,
		"markets":       len(t.universe.MarketIDs),
		"pairs":         len(t.universe.Pairs),
		"groups":        len(t.universe.Groups),
		"halted":        t.execution.Halted(),
		"multiplier":    t.adaptive.Multiplier(),
	}
}

func (t *Trader) emit(typ domain.EventType, payload map[string]any) {
	t.recorder.Emit(domain.Event{Type: typ, Payload: payload})
}

// Status is the document served by GET /api/status.
type Status struct {
	Mode              string                   `json:"mode"`
	Halted            bool                     `json:"halted"`
	ConsecutiveErrors int                      `json:"consecutiveErrors"`
	Control           domain.ControlState      `json:"control"`
	Multiplier        float64                  `json:"multiplier"`
	Risk              service.RiskState        `json:"risk"`
	Tuner             *arbitrage.TunerCounters `json:"tuner,omitempty"`
	Markets           int                      `json:"markets"`
	Pairs             int                      `json:"pairs"`
	Groups            int                      `json:"groups"`
	TelemetryDropped  int64                    `json:"telemetryDropped"`
	StartedAt         time.Time                `json:"startedAt,omitempty"`
}

// Status snapshots the trader state.
func (t *Trader) Status() any {
	st := Status{
		Mode:              t.execution.Mode(),
		Halted:            t.execution.Halted(),
		ConsecutiveErrors: t.execution.ConsecutiveErrors(),
		Control:           t.control.State(),
		Multiplier:        t.adaptive.Multiplier(),
		Risk:              t.risk.Snapshot(),
		Markets:           len(t.universe.MarketIDs),
		Pairs:             len(t.universe.Pairs),
		Groups:            len(t.universe.Groups),
		TelemetryDropped:  t.recorder.Dropped(),
		StartedAt:         t.started,
	}
	if t.tuner != nil {
		c := t.tuner.Counters()
		st.Tuner = &c
	}
	return st
}

func (t *Trader) handlers() server.Handlers {
	h := server.Handlers{
		Health:  handler.NewHealthHandler(t.deps.Health),
		Status:  handler.NewStatusHandler(t),
		Control: handler.NewControlHandler(t.control, t.logger),
		Metrics: t.deps.Metrics.Handler(),
	}
	if t.deps.EventStore != nil {
		var stream handler.StreamReader
		if t.deps.SignalBus != nil {
			stream = t.deps.SignalBus
		}
		h.Events = handler.NewEventsHandler(t.deps.EventStore, stream, t.logger)
	}
	return h
}
