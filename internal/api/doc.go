// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

/*
Package api provides the HTTP surface of the call monitor.

The router is built on chi with middleware from the chi ecosystem
(go-chi/cors for CORS, go-chi/httprate for rate limiting) plus the
infrastructure middleware in internal/middleware. All JSON endpoints
share the APIResponse envelope.

Endpoints:

	GET  /api/v1/health                          - health status
	GET  /api/v1/health/live                     - liveness probe
	GET  /api/v1/health/ready                    - readiness probe
	GET  /api/v1/calls/status                    - manager session state
	POST /api/v1/calls/connect                   - open the manager session
	POST /api/v1/calls/disconnect                - close the manager session
	GET  /api/v1/recordings?from&to&extension    - search recordings
	GET  /api/v1/recordings/stream/{fileName}    - stream with Range support
	GET  /api/v1/recordings/download/{fileName}  - download as attachment
	GET  /api/v1/ws                              - WebSocket event fan-out
	GET  /metrics                                - Prometheus scrape endpoint

Recording streaming uses http.ServeContent so browser audio players can
seek; those responses bypass gzip compression to keep byte offsets
exact.
*/
package api
