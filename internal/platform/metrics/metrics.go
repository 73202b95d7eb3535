// Package metrics exposes the prometheus collectors for the realtime core.
// PersistenceError during append is the one error class escalated as a
// system-health signal, so it gets its own counter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livechat_connections",
		Help: "Currently registered websocket connections.",
	})

	MessagesSequenced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livechat_messages_sequenced_total",
		Help: "Messages durably sequenced, per room.",
	}, []string{"room"})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livechat_persistence_failures_total",
		Help: "Failed append transactions against the durable log.",
	})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livechat_deliveries_dropped_total",
		Help: "Frames skipped because a connection's outbound queue was full.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livechat_rate_limited_total",
		Help: "Inbound sends rejected by the per-connection token bucket.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
