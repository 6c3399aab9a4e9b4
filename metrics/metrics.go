// Package metrics holds the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ShiftTransitionsTotal counts ledger transitions by name and outcome.
	ShiftTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_shift_transitions_total",
		Help: "Shift ledger transitions by transition and outcome",
	}, []string{"transition", "outcome"})

	// ActivityWritesTotal counts activity recorder outcomes: written, retried, dropped, rejected.
	ActivityWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_activity_writes_total",
		Help: "Activity log writes by outcome",
	}, []string{"outcome"})

	// LocationResolutionsTotal counts resolver results by source ("none" when every source failed).
	LocationResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_location_resolutions_total",
		Help: "Location resolutions by winning source",
	}, []string{"source"})

	// HTTPRequestsTotal counts handled requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardpost_http_requests_total",
		Help: "HTTP requests by path and status",
	}, []string{"path", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guardpost_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)
