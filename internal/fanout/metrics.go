package fanout

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK      = "ok"
	resultError   = "error"
	resultTimeout = "timeout"
)

var (
	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "fanout",
			Name:      "publish_total",
			Help:      "Fanout publish attempts by event kind and result.",
		},
		[]string{"kind", "result"},
	)
	publishLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "fanout",
			Name:      "publish_seconds",
			Help:      "Time spent publishing one event to all of its topics.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
	)
	inflightDispatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "fanout",
			Name:      "inflight_dispatches",
			Help:      "Detached publishes not yet finished.",
		},
	)
)

func init() {
	prometheus.MustRegister(publishTotal, publishLatency, inflightDispatches)
}
