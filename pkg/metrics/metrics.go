// Package metrics holds the Prometheus collectors for the refresh pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memefolio"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FeedRequests    *prometheus.CounterVec
	FeedFailures    *prometheus.CounterVec
	BalanceLookups  *prometheus.CounterVec
	BalanceFailures *prometheus.CounterVec

	RegistryPublishes prometheus.Counter
	RegistryConflicts prometheus.Counter
	RegistryVersion   prometheus.Gauge
	RegistrySize      prometheus.Gauge

	TickDuration *prometheus.HistogramVec
	HoldingsUSD  *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New registers collectors on a fresh registry so several instances can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		FeedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "requests_total",
			Help:      "Outbound market data requests by source",
		}, []string{"source"}),
		FeedFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "failures_total",
			Help:      "Failed market data requests by source",
		}, []string{"source"}),
		BalanceLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "lookups_total",
			Help:      "Balance lookups by chain",
		}, []string{"chain"}),
		BalanceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "failures_total",
			Help:      "Balance lookups that fell back to zero",
		}, []string{"chain"}),
		RegistryPublishes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "publishes_total",
			Help:      "Snapshots published after a detected change",
		}),
		RegistryConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "conflicts_total",
			Help:      "Compare-and-swap attempts rejected due to a newer snapshot",
		}),
		RegistryVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "version",
			Help:      "Version of the published snapshot",
		}),
		RegistrySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "coins",
			Help:      "Number of coins in the published snapshot",
		}),
		TickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "tick_duration_seconds",
			Help:      "Duration of refresher ticks",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"loop"}),
		HoldingsUSD: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "total_usd",
			Help:      "Latest aggregated USD value by view",
		}, []string{"view"}),
		registry: reg,
	}
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FeedRequest(source string, err error) {
	if m == nil {
		return
	}
	m.FeedRequests.WithLabelValues(source).Inc()
	if err != nil {
		m.FeedFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) BalanceLookup(chain string, err error) {
	if m == nil {
		return
	}
	m.BalanceLookups.WithLabelValues(chain).Inc()
	if err != nil {
		m.BalanceFailures.WithLabelValues(chain).Inc()
	}
}

func (m *Metrics) Published(version uint64, size int) {
	if m == nil {
		return
	}
	m.RegistryPublishes.Inc()
	m.RegistryVersion.Set(float64(version))
	m.RegistrySize.Set(float64(size))
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.RegistryConflicts.Inc()
}

func (m *Metrics) ObserveTick(loop string, seconds float64) {
	if m == nil {
		return
	}
	m.TickDuration.WithLabelValues(loop).Observe(seconds)
}

func (m *Metrics) SetHoldings(view string, usd float64) {
	if m == nil {
		return
	}
	m.HoldingsUSD.WithLabelValues(view).Set(usd)
}
