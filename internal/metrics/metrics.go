// Package metrics provides Prometheus instrumentation for delivery
// outcomes, local session and call-session occupancy, and the undelivered
// store.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgate"

// Registry is a dedicated registry rather than prometheus.DefaultRegisterer,
// so Handler exposes only this package's metrics. It is package-level: every
// user in one process, tests included, shares the same metric state.
var Registry = prometheus.NewRegistry()

var (
	// DeliveryOutcomes tracks every routing decision by outcome
	// (delivered/queued/failed/dropped) and path (chat/http).
	DeliveryOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "outcomes_total",
			Help:      "Total routing decisions by outcome and path",
		},
		[]string{"path", "outcome"},
	)

	// LocalSessions tracks the number of open websocket connections on
	// this pod.
	LocalSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "local_active",
			Help:      "Number of websocket sessions currently open on this pod",
		},
	)

	// ActiveCallSessions tracks in-flight call-signaling sessions.
	ActiveCallSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "active_calls",
			Help:      "Number of call-signaling sessions currently tracked",
		},
	)

	// UndeliveredStored tracks messages written to the undelivered store,
	// aggregated across receivers.
	UndeliveredStored = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "undelivered",
			Name:      "stored_total",
			Help:      "Total messages written to the undelivered store",
		},
	)

	// HandshakeRejections tracks websocket handshakes closed for an invalid
	// or missing token.
	HandshakeRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshake_rejections_total",
			Help:      "Total websocket handshakes rejected for an invalid or missing token",
		},
	)
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
