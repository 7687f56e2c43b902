/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lectern"

var (
	// DisplayCommandsTotal counts display commands by action and outcome.
	DisplayCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "display_commands_total",
		Help:      "Display commands received, by action and result.",
	}, []string{"action", "result"})

	// StateCommitsTotal counts committed display state changes by cause.
	StateCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_commits_total",
		Help:      "Committed display state changes, by cause.",
	}, []string{"cause"})

	// WebsocketConnections tracks connected websocket clients.
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Currently connected websocket clients.",
	})

	// ScheduleEventsTotal counts schedule lifecycle events by type.
	ScheduleEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_events_total",
		Help:      "Audio schedule lifecycle events, by type.",
	}, []string{"type"})

	// SchedulesPending tracks armed schedules.
	SchedulesPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "schedules_pending",
		Help:      "Audio schedules waiting to fire.",
	})

	// PersistenceErrorsTotal counts failed writes by collection.
	PersistenceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persistence_errors_total",
		Help:      "Failed persistence writes, by collection.",
	}, []string{"collection"})

	// MediaResolveTotal counts media lookups by backend and result.
	MediaResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_resolve_total",
		Help:      "Media resolver lookups, by backend and result.",
	}, []string{"backend", "result"})

	// DatabaseQueryDuration observes gorm operations by table.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "Database operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed gorm operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Failed database operations.",
	}, []string{"operation", "table"})

	// DatabaseConnectionsActive tracks open pool connections.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections_active",
		Help:      "Open database connections.",
	})

	// APIRequestDuration observes HTTP latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
