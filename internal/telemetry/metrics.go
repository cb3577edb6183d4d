/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the admin service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lopan_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lopan_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lopan_api_active_connections",
			Help: "Number of in-flight HTTP API requests",
		},
	)

	// BatchTransitionsTotal counts workflow transitions by target status.
	BatchTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lopan_batch_transitions_total",
			Help: "Total number of production batch state transitions",
		},
		[]string{"transition"},
	)

	// BatchValidationFailuresTotal counts blocked validations by issue code.
	BatchValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lopan_batch_validation_failures_total",
			Help: "Total number of batch validations blocked, by issue code",
		},
		[]string{"code"},
	)

	// DatabaseQueryDuration observes GORM operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lopan_database_query_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lopan_database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation", "kind"},
	)

	// DatabaseConnectionsActive gauges open connections in the pool.
	DatabaseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lopan_database_connections_active",
			Help: "Number of open database connections",
		},
	)
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
