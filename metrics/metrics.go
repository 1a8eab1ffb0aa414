package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FluffyKebab/peerwatch/peer"
	"github.com/FluffyKebab/peerwatch/report"
)

const namespace = "peerwatch"

// Collector exposes the node's peer set and lifecycle activity to Prometheus.
type Collector struct {
	peersConnected  prometheus.Gauge
	lifecycleEvents *prometheus.CounterVec
	dialFailures    prometheus.Counter
	reports         prometheus.Counter
}

var _ report.Sink = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "number of peers in the last reported snapshot",
		}),
		lifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "connection lifecycle events applied to the peer set",
		}, []string{"kind"}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "outbound dial attempts that failed",
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "periodic peer set reports emitted",
		}),
	}

	for _, col := range []prometheus.Collector{c.peersConnected, c.lifecycleEvents, c.dialFailures, c.reports} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) Report(peers []peer.ID) {
	c.peersConnected.Set(float64(len(peers)))
	c.reports.Inc()
}

func (c *Collector) LifecycleEvent(kind string) {
	c.lifecycleEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) DialFailure() {
	c.dialFailures.Inc()
}
