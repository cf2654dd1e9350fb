package gateway

import "github.com/prometheus/client_golang/prometheus"

const (
	pushDelivered = "delivered"
	pushFiltered  = "filtered"
	pushFailed    = "failed"
	pushDropped   = "dropped"
)

var (
	onlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "gateway",
		Name:      "online_users",
		Help:      "Users with at least one local connection.",
	})
	onlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "gateway",
		Name:      "online_connections",
		Help:      "Open WebSocket connections.",
	})
	pushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "gateway",
		Name:      "push_total",
		Help:      "Event frames handled by push workers, by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(onlineUsers, onlineConns, pushTotal)
}
