// Package telemetry exposes prometheus collectors for replay runs.
// All methods are safe on a nil *Metrics, so callers never need to check.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run statuses.
const (
	RunOK       = "ok"
	RunFailed   = "failed"
	RunRejected = "rejected"
)

// Day outcomes.
const (
	DayTraded  = "traded"
	DayNoEntry = "no_entry"
	DayEmpty   = "empty"
	DayFailed  = "failed"
)

type Metrics struct {
	runs   *prometheus.CounterVec
	days   *prometheus.CounterVec
	trades *prometheus.CounterVec
	fetch  prometheus.Histogram
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_runs_total",
			Help: "Backtest runs by final status.",
		}, []string{"status"}),
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_days_total",
			Help: "Business days processed by outcome.",
		}, []string{"outcome"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_trades_total",
			Help: "Simulated trades by exit reason.",
		}, []string{"exit_reason"}),
		fetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_fetch_duration_seconds",
			Help:    "Latency of one day's candle fetch, throttle wait excluded.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.runs, m.days, m.trades, m.fetch)
	}
	return m
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) DayProcessed(outcome string) {
	if m == nil {
		return
	}
	m.days.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TradeClosed(reason string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetch.Observe(d.Seconds())
}
