package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planwise_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// ImageCacheLookups counts image cache lookups by result (hit|miss).
	ImageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planwise_image_cache_lookups_total",
			Help: "Total number of image cache lookups",
		},
		[]string{"result"},
	)

	// ImageCacheSweeps counts entries removed by age-based cache sweeps.
	ImageCacheSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planwise_image_cache_swept_entries_total",
			Help: "Total number of cache entries removed by sweeps",
		},
	)

	// ImagesExtracted counts images extracted from subtask descriptions.
	ImagesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planwise_images_extracted_total",
			Help: "Total number of inline images extracted and persisted",
		},
	)

	// NotificationsCreated counts due-date notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planwise_notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type"},
	)
)
