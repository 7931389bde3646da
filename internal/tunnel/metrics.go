package tunnel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the tunnel's operational counters and gauges as
// Prometheus instruments.
type Metrics struct {
	packetsSent      prometheus.Counter
	packetsReceived  prometheus.Counter
	parityEmitted    prometheus.Counter
	recoveredPackets prometheus.Counter

	rcvTotal prometheus.Gauge
	rcvRec   prometheus.Gauge
	rcvFail  prometheus.Gauge
}

// NewMetrics registers a fresh set of tunnel metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		packetsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "fectun_packets_sent_total",
			Help: "Total packets transmitted on the UDP socket, data and parity.",
		}),
		packetsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "fectun_packets_received_total",
			Help: "Total valid (HMAC-verified) packets received.",
		}),
		parityEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fectun_parity_packets_sent_total",
			Help: "Total parity packets emitted in matrix flush bursts.",
		}),
		recoveredPackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "fectun_packets_recovered_total",
			Help: "Total data packets recovered via FEC decode.",
		}),
		rcvTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fectun_rcv_total",
			Help: "Cumulative data packets accounted for since the last resync.",
		}),
		rcvRec: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fectun_rcv_recovered",
			Help: "Cumulative groups repaired via FEC since the last resync.",
		}),
		rcvFail: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fectun_rcv_failed",
			Help: "Cumulative unrepairable data packets since the last resync.",
		}),
	}
}

// NewNopMetrics returns a Metrics backed by its own private registry,
// for callers (tests, or New when given nil metrics) that need a
// working instrument set without publishing anything.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
