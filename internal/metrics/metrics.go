// Package metrics provides Prometheus instrumentation for ember.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ember_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ember_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// WebSocket metrics.
var (
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ember_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	WSMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ember_ws_messages_total",
		Help: "Total number of chat messages broadcast over WebSocket.",
	})
)

// Domain metrics.
var (
	MessagesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ember_messages_created_total",
		Help: "Total number of chat messages persisted.",
	})

	SearchQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ember_search_queries_total",
		Help: "Total number of full-text search queries served.",
	})
)
