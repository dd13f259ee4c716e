// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/issabel-tools/callmonitor/internal/middleware"
)

// NewRouter assembles the chi router with the full middleware stack.
//
// Route layout:
//
//	/api/v1/health         - health endpoints (permissive rate limit)
//	/api/v1/calls/*        - manager session control and status
//	/api/v1/recordings/*   - recording search, streaming, download
//	/api/v1/ws             - WebSocket fan-out (upgrade rate limit)
//	/metrics               - Prometheus scrape endpoint
func NewRouter(h *Handler, cm *ChiMiddleware) chi.Router {
	r := chi.NewRouter()

	// Global middleware applied to every route.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cm.CORS())
	r.Use(APISecurityHeaders())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(cm.RateLimitHealth())
		r.Get("/", h.Health)
		r.Get("/live", h.Live)
		r.Get("/ready", h.Ready)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cm.RateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		r.Route("/calls", func(r chi.Router) {
			r.Get("/status", h.GetCallsStatus)
			r.Post("/connect", h.ConnectCalls)
			r.Post("/disconnect", h.DisconnectCalls)
		})

		r.Route("/recordings", func(r chi.Router) {
			r.Get("/", h.SearchRecordings)
			r.Get("/stream/{fileName}", h.StreamRecording)
			r.Get("/download/{fileName}", h.DownloadRecording)
		})
	})

	// WebSocket upgrades skip compression and metrics wrapping; the
	// connection outlives the request.
	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(cm.RateLimitWebSocket())
		r.Get("/", h.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
