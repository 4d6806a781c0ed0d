// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Uploads counts processed uploads by result: new, dedup, rejected, error.
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgapi_media_uploads_total",
			Help: "Uploaded media files by outcome",
		},
		[]string{"result"},
	)

	// Tombstones counts records removed because their file was gone.
	Tombstones = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imgapi_media_tombstones_total",
			Help: "Media records deleted because the backing file was missing",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgapi_response_cache_lookups_total",
			Help: "Disk response cache lookups by result",
		},
		[]string{"result"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgapi_response_cache_writes_total",
			Help: "Disk response cache writes by result",
		},
		[]string{"result"},
	)

	Conversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgapi_image_conversions_total",
			Help: "On-the-fly image conversions by target format and result",
		},
		[]string{"format", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgapi_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgapi_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
