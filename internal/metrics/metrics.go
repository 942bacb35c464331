// Package metrics exposes trader counters and gauges for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "polyarb"

// Metrics owns a private registry so tests can build it freely.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	sinkErrors  *prometheus.CounterVec
	dropped     prometheus.Counter
	bookUpdates prometheus.Counter

	halted     prometheus.Gauge
	multiplier prometheus.Gauge
	exposure   prometheus.Gauge
	markets    prometheus.Gauge
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Telemetry events emitted, by type.",
		}, []string{"type"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_sink_errors_total",
			Help:      "Telemetry sink write failures, by sink.",
		}, []string{"sink"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Telemetry events dropped because the buffer was full.",
		}),
		bookUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_updates_total",
			Help:      "Order book messages applied.",
		}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_halted",
			Help:      "1 once the kill switch has engaged.",
		}),
		multiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adaptive_multiplier",
			Help:      "Current adaptive spread multiplier.",
		}),
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_total_exposure",
			Help:      "Total notional exposure recorded by the risk engine.",
		}),
		markets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markets_tracked",
			Help:      "Markets with a local order book.",
		}),
	}

	m.registry.MustRegister(
		m.events, m.sinkErrors, m.dropped, m.bookUpdates,
		m.halted, m.multiplier, m.exposure, m.markets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Name identifies the metrics sink.
func (m *Metrics) Name() string { return "metrics" }

// Write counts evt and tracks the kill switch.
func (m *Metrics) Write(_ context.Context, evt domain.Event) error {
	m.events.WithLabelValues(string(evt.Type)).Inc()
	if evt.Type == domain.EventKillSwitch {
		m.halted.Set(1)
	}
	return nil
}

// ObserveDropped counts a dropped telemetry event.
func (m *Metrics) ObserveDropped() { m.dropped.Inc() }

// ObserveSinkError counts a failed sink write.
func (m *Metrics) ObserveSinkError(sink string) { m.sinkErrors.WithLabelValues(sink).Inc() }

// ObserveBookUpdate counts an applied book message.
func (m *Metrics) ObserveBookUpdate() { m.bookUpdates.Inc() }

// SetMultiplier records the adaptive multiplier.
func (m *Metrics) SetMultiplier(v float64) { m.multiplier.Set(v) }

// SetExposure records the total exposure.
func (m *Metrics) SetExposure(v float64) { m.exposure.Set(v) }

// SetMarkets records the number of tracked markets.
func (m *Metrics) SetMarkets(n int) { m.markets.Set(float64(n)) }
