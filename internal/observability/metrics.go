package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_ride"

var (
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "checkins_total", Help: "Check-in attempts by outcome"},
		[]string{"outcome"},
	)
	LocationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_updates_total", Help: "Location updates by outcome"},
		[]string{"outcome"},
	)
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "alerts_total", Help: "Alerts sent by type"},
		[]string{"type"},
	)
	ActivitiesAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "activities_appended_total", Help: "Activity feed events appended by type"},
		[]string{"type"},
	)
	ConsumerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "consumer_messages_total", Help: "Lifecycle messages consumed by result"},
		[]string{"result"},
	)
	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_duration_seconds",
		Help:      "Live snapshot assembly latency",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
