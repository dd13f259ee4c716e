// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for request ID tracking,
Prometheus metrics instrumentation, and gzip compression. These components
work alongside the chi router middleware in internal/api to form the
complete request processing stack.

Key Components:

  - RequestID: UUID-based request tracking for log correlation
  - PrometheusMetrics: HTTP request/response instrumentation labelled
    by chi route pattern
  - Compression: Gzip compression for API responses

Middleware ordering inside internal/api:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cm.CORS())
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(cm.RateLimit())
	    r.Use(middleware.PrometheusMetrics)
	    r.Use(middleware.Compression)
	    ...
	})

Usage Example - Request ID:

	func handler(w http.ResponseWriter, r *http.Request) {
	    id := middleware.GetRequestID(r.Context())
	    logging.Info().Str("request_id", id).Msg("processing request")
	}

Compression Details:

The compression middleware:
  - Requires Accept-Encoding: gzip from the client
  - Skips WebSocket upgrade requests
  - Skips recording audio files (.wav, .mp3, .gsm, .ogg) so that
    http.ServeContent range requests keep exact byte offsets
  - Reuses gzip writers through a sync.Pool

Metrics Details:

PrometheusMetrics records request counts and latency histograms using
the chi route pattern as the endpoint label, so parameterised paths
such as /recordings/stream/{fileName} collapse into a single series.

Thread Safety:

All middleware components are safe for concurrent use:
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations
  - Compression uses per-request gzip writers from a pool

See Also:

  - internal/api: chi router and rate limiting/CORS middleware
  - internal/metrics: Prometheus metric definitions
*/
package middleware
