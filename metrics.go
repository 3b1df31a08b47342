package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doodoo_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "handler"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doodoo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "handler", "code"},
	)

	resultCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doodoo_result_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"}, // "hit" or "miss"
	)

	responseCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doodoo_response_cache_lookups_total",
			Help: "On-disk upstream response cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doodoo_upstream_requests_total",
			Help: "Workers API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	staleFetchesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doodoo_pager_stale_fetches_total",
			Help: "Page fetches discarded because a newer navigation superseded them",
		},
	)

	downloadsRedirected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doodoo_downloads_total",
			Help: "Download requests redirected to the Workers API",
		},
	)
)
