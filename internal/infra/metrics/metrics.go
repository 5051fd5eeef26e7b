// Package metrics defines the Prometheus collectors of the feed server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dp1feed_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dp1feed_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Key-value store metrics
var (
	KVOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dp1feed_kv_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"namespace", "operation", "status"},
	)

	KVOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dp1feed_kv_operation_duration_seconds",
			Help:    "Key-value store operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"namespace", "operation"},
	)
)

// Reference resolution metrics
var (
	ReferenceResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dp1feed_reference_resolutions_total",
			Help: "Playlist references resolved while saving groups",
		},
		[]string{"source", "outcome"}, // source: local|remote
	)

	SignaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dp1feed_signatures_total",
			Help: "Documents signed by the server",
		},
		[]string{"kind"},
	)
)
