package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the ambient Prometheus surface wired into the tracker, the
// mirror DHT and the gateway send-retry loop.
// NewMetrics registers every collector against the registerer it is
// given, so two Metrics built on the same registerer collide.
type Metrics struct {
	TrackerTimeouts      prometheus.Counter
	TrackerLateResponses prometheus.Counter

	DhtGossipSent     *prometheus.CounterVec
	DhtPeersHeld      prometheus.Gauge
	DhtPeersTimedOut  prometheus.Gauge

	GatewaySendRetries  prometheus.Counter
	GatewaySendTimeouts prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set under the given
// registerer (use a dedicated prometheus.NewRegistry() in tests to avoid
// duplicate-registration panics across engine instances).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TrackerTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lib3h_tracker_timeouts_total",
			Help: "Pending callbacks resolved by deadline rather than response.",
		}),
		TrackerLateResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "lib3h_tracker_late_responses_total",
			Help: "Response frames whose correlation id was not found (dropped).",
		}),
		DhtGossipSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lib3h_dht_gossip_sent_total",
			Help: "Gossip fan-out emissions by bundle kind.",
		}, []string{"kind"}),
		DhtPeersHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lib3h_dht_peers_held_total",
			Help: "Current size of the peer map.",
		}),
		DhtPeersTimedOut: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lib3h_dht_peers_timed_out_total",
			Help: "Current count of peers flagged as timed out.",
		}),
		GatewaySendRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lib3h_gateway_send_retries_total",
			Help: "Send attempts re-queued by the gateway retry loop.",
		}),
		GatewaySendTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lib3h_gateway_send_timeouts_total",
			Help: "Sends abandoned after exceeding their deadline.",
		}),
	}
}

// NewUnregisteredMetrics builds a Metrics backed by a private registry, the
// default for tests and for multi-engine-per-process demos where global
// registration would collide.
func NewUnregisteredMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
