package observ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the chat server reports.
//
// Each server instance builds its own set against a registry it controls so
// tests can create as many hubs as they like without duplicate-registration
// panics from the global default registry.
type Metrics struct {
	Connections     prometheus.Gauge
	Subscriptions   prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	ChatOps         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaychat",
			Name:      "ws_connections",
			Help:      "Live WebSocket connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaychat",
			Name:      "subscriptions",
			Help:      "Live (connection, chat) subscriptions.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "events_published_total",
			Help:      "Events handed to the fan-out router.",
		}, []string{"event"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "events_delivered_total",
			Help:      "Events enqueued on a subscriber's outbox.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber's outbox was full or closed.",
		}, []string{"event"}),
		ChatOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "chat_ops_total",
			Help:      "Conversation operations by outcome.",
		}, []string{"op", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.Subscriptions,
			m.EventsPublished,
			m.EventsDelivered,
			m.EventsDropped,
			m.ChatOps,
		)
	}
	return m
}

// NopMetrics returns collectors that are not registered anywhere.
func NopMetrics() *Metrics {
	return NewMetrics(nil)
}
