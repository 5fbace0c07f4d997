// Package metrics exposes the Prometheus collectors for the price client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// ChannelConnected is 1 while the push channel is established.
	ChannelConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mandistream",
			Subsystem: "channel",
			Name:      "connected",
			Help:      "Whether the push channel is currently established.",
		},
	)

	// ReconnectAttempts counts dial attempts by outcome.
	ReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mandistream",
			Subsystem: "channel",
			Name:      "connect_attempts_total",
			Help:      "Push channel dial attempts.",
		},
		[]string{"outcome"},
	)

	// PushEvents counts server-pushed events by kind.
	PushEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mandistream",
			Subsystem: "channel",
			Name:      "push_events_total",
			Help:      "Server-pushed events received, by event kind.",
		},
		[]string{"event"},
	)

	// RestRequests counts REST calls by operation and outcome.
	RestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mandistream",
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "REST calls issued, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// RestDuration observes REST call latency.
	RestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mandistream",
			Subsystem: "rest",
			Name:      "request_duration_seconds",
			Help:      "Duration of REST calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"op"},
	)

	// CacheDecisions counts offline-cache outcomes by partition.
	CacheDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mandistream",
			Subsystem: "cache",
			Name:      "decisions_total",
			Help:      "Offline cache decisions, by partition and outcome.",
		},
		[]string{"partition", "outcome"},
	)

	// QueueFlushes counts sync-queue flushes by queue and outcome.
	QueueFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mandistream",
			Subsystem: "sync",
			Name:      "queue_flushes_total",
			Help:      "Offline sync queue flushes, by queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		ChannelConnected,
		ReconnectAttempts,
		PushEvents,
		RestRequests,
		RestDuration,
		CacheDecisions,
		QueueFlushes,
	)
}

// Handler serves the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
