package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay core's prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	RejectsTotal      prometheus.Counter

	MessagesPublished prometheus.Counter
	Deliveries        prometheus.Counter
	DeliveryDrops     prometheus.Counter
	PersistFailures   prometheus.Counter

	PresenceEvents *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of live websocket connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted websocket connections.",
		}),
		RejectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_connection_rejects_total",
			Help: "Connections rejected at identify time.",
		}),
		MessagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_published_total",
			Help: "Messages accepted for fan-out.",
		}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-recipient message deliveries enqueued.",
		}),
		DeliveryDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivery_drops_total",
			Help: "Per-recipient deliveries dropped (closed client or full queue).",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_persist_failures_total",
			Help: "Message persistence failures (fan-out proceeds regardless).",
		}),
		PresenceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_presence_events_total",
			Help: "Presence notifications sent, by kind.",
		}, []string{"kind"}),
	}
}
