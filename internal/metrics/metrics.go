// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package metrics provides Prometheus instrumentation for the manager
// session, the event pipeline, the websocket hub and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Manager session metrics
	ManagerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "manager_session_connected",
			Help: "Whether the manager session is currently connected (1) or not (0)",
		},
	)

	ManagerConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manager_connects_total",
			Help: "Total number of successful manager logins",
		},
	)

	ManagerLoginFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manager_login_failures_total",
			Help: "Total number of failed manager login attempts",
		},
	)

	ManagerStreamFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manager_stream_faults_total",
			Help: "Total number of manager sessions ended by a stream fault",
		},
	)

	// Event pipeline metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_events_published_total",
			Help: "Total number of call events published to the event bus",
		},
		[]string{"event_type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_events_dropped_total",
			Help: "Total number of call events dropped by the bridge dispatch queue",
		},
	)

	BroadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_event_broadcasts_total",
			Help: "Total number of call event broadcasts to websocket groups",
		},
		[]string{"scope"}, // "extension" or "all"
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Recording locator metrics
	RecordingSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recording_search_duration_seconds",
			Help:    "Duration of recording filesystem scans in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordingSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recording_search_results",
			Help:    "Number of recordings returned per search",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRecordingSearch records one locator scan.
func RecordRecordingSearch(duration time.Duration, results int) {
	RecordingSearchDuration.Observe(duration.Seconds())
	RecordingSearchResults.Observe(float64(results))
}
