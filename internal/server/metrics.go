package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcelrisk",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method, and status code",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parcelrisk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	resolveRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcelrisk",
			Name:      "resolve_requests_total",
			Help:      "Total number of nearest-parcel resolutions by outcome",
		},
		[]string{"outcome"},
	)

	exportRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parcelrisk",
		Name:      "export_rows_total",
		Help:      "Total number of parcel rows written to export downloads",
	})

	overlayCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcelrisk",
			Name:      "overlay_cache_results_total",
			Help:      "Overlay GeoJSON cache lookups by result",
		},
		[]string{"result"},
	)
)
