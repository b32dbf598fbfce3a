// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Round outcomes recorded by ObserveRound.
const (
	OutcomeNarrated = "narrated"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
	OutcomeEmpty    = "empty"
)

type Metrics struct {
	OnlineConnections prometheus.Gauge
	ActiveGames       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	MessageLatency    prometheus.Histogram

	ActionsEnqueued  prometheus.Counter
	ActionsRejected  prometheus.Counter
	RoundsResolved   *prometheus.CounterVec
	BusyRejections   prometheus.Counter
	NarratorLatency  prometheus.Histogram
	NarratorFailures *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	SweepFailures    prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of connected clients",
		}),
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of ACTIVE games seen by the last sweep",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		ActionsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_enqueued_total",
			Help:      "Actions accepted into a game's pending queue",
		}),
		ActionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_rejected_total",
			Help:      "Actions refused by the admission rules",
		}),
		RoundsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Round resolutions by outcome",
		}, []string{"outcome"}),
		BusyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_busy_total",
			Help:      "Resolution attempts refused because one was already in flight",
		}),
		NarratorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrator_latency_seconds",
			Help:      "Narrator call latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		NarratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrator_failures_total",
			Help:      "Narrator calls that fell back, by reason",
		}, []string{"reason"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a background sweep over active games",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Sweeps that returned an error or panicked",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OnlineConnections,
		m.ActiveGames,
		m.MessagesReceived,
		m.MessageLatency,
		m.ActionsEnqueued,
		m.ActionsRejected,
		m.RoundsResolved,
		m.BusyRejections,
		m.NarratorLatency,
		m.NarratorFailures,
		m.SweepDuration,
		m.SweepFailures,
	}
}

// Monitor owns a registry so several instances (tests) never collide on
// the global one. A nil *Monitor is valid and records nothing.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	m.registry.MustRegister(m.metrics.collectors()...)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	}))
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

func (m *Monitor) IncOnlineConnections() {
	if m == nil {
		return
	}
	m.metrics.OnlineConnections.Inc()
}

func (m *Monitor) DecOnlineConnections() {
	if m == nil {
		return
	}
	m.metrics.OnlineConnections.Dec()
}

func (m *Monitor) SetActiveGames(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveGames.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncActionsEnqueued() {
	if m == nil {
		return
	}
	m.metrics.ActionsEnqueued.Inc()
}

func (m *Monitor) IncActionsRejected() {
	if m == nil {
		return
	}
	m.metrics.ActionsRejected.Inc()
}

func (m *Monitor) ObserveRound(outcome string) {
	if m == nil {
		return
	}
	m.metrics.RoundsResolved.WithLabelValues(outcome).Inc()
}

func (m *Monitor) IncBusy() {
	if m == nil {
		return
	}
	m.metrics.BusyRejections.Inc()
}

func (m *Monitor) ObserveNarrator(duration time.Duration, failureReason string) {
	if m == nil {
		return
	}
	m.metrics.NarratorLatency.Observe(duration.Seconds())
	if failureReason != "" {
		m.metrics.NarratorFailures.WithLabelValues(failureReason).Inc()
	}
}

func (m *Monitor) ObserveSweep(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.metrics.SweepDuration.Observe(duration.Seconds())
	if failed {
		m.metrics.SweepFailures.Inc()
	}
}
