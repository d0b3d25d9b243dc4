package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type relayMetrics struct {
	activeConns     prometheus.Gauge
	connsTotal      prometheus.Counter
	framesTotal     *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	offlineReplayed prometheus.Counter
	handleLatency   *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &relayMetrics{
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "litchat_connections_active",
			Help: "Current number of open client connections.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "litchat_connections_total",
			Help: "Total client connections accepted since start.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litchat_frames_total",
			Help: "Inbound frames by command type.",
		}, []string{"cmd"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litchat_deliveries_total",
			Help: "Message dispatch outcomes by path.",
		}, []string{"path"}),
		offlineReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "litchat_offline_replayed_total",
			Help: "Offline messages replayed to reconnecting users.",
		}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litchat_handle_latency_seconds",
			Help:    "Latency for handling inbound frames.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"cmd"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litchat_errors_total",
			Help: "Connection and routing errors by code.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		m.activeConns,
		m.connsTotal,
		m.framesTotal,
		m.deliveries,
		m.offlineReplayed,
		m.handleLatency,
		m.errorsTotal,
	)
	return m
}

func (m *relayMetrics) connOpened() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
	m.connsTotal.Inc()
}

func (m *relayMetrics) connClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *relayMetrics) recordFrame(cmd string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(cmd).Inc()
}

func (m *relayMetrics) recordDelivery(path string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(path).Inc()
}

func (m *relayMetrics) recordReplayed(n int) {
	if m == nil {
		return
	}
	m.offlineReplayed.Add(float64(n))
}

func (m *relayMetrics) observeHandle(cmd string, dur time.Duration) {
	if m == nil {
		return
	}
	m.handleLatency.WithLabelValues(cmd).Observe(dur.Seconds())
}

func (m *relayMetrics) recordError(code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}
