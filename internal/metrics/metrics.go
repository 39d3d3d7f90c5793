package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairing_relay"

// Join attempt outcomes.
const (
	JoinAccepted    = "accepted"
	JoinInvalid     = "invalid_code"
	JoinExpired     = "expired"
	JoinInUse       = "in_use"
	JoinRateLimited = "rate_limited"
)

// Drop reasons for messages that never reached the other peer.
const (
	DropNotPaired = "not_paired"
	DropQueueFull = "queue_full"
	DropMalformed = "malformed"
	DropFlood     = "flood"
)

// Metrics holds the relay's collectors on a private registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	SessionsOpened  prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsExpired prometheus.Counter
	JoinAttempts    *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	Relayed         *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Lockouts        prometheus.Counter
	Connections     *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Pairing sessions opened by initiators.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Pairing sessions currently held in the registry.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Pairing sessions removed because their code expired.",
		}),
		JoinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_attempts_total",
			Help:      "Join attempts by outcome.",
		}, []string{"result"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Initiator approval decisions.",
		}, []string{"decision"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_messages_total",
			Help:      "Signaling messages forwarded between paired peers.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Messages dropped instead of delivered.",
		}, []string{"reason"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Origins locked out after too many join attempts.",
		}),
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections by role.",
		}, []string{"role"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsOpened,
		m.SessionsActive,
		m.SessionsExpired,
		m.JoinAttempts,
		m.Decisions,
		m.Relayed,
		m.Dropped,
		m.Lockouts,
		m.Connections,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
