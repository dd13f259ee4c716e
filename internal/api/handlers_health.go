// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"net/http"
	"os"
	"time"
)

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	ManagerConnected bool    `json:"managerConnected"`
	ManagerState     string  `json:"managerState"`
	WebSocketClients int     `json:"webSocketClients"`
	RecordingsPath   string  `json:"recordingsPath"`
	UptimeSeconds    float64 `json:"uptimeSeconds"`
}

// Health reports overall service health. The service is degraded, not
// down, while the manager session is disconnected: HTTP and recording
// search keep working without it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	managerConnected := h.manager.IsConnected()

	status := "healthy"
	if !managerConnected {
		status = "degraded"
	}

	WriteSuccess(w, r, HealthStatus{
		Status:           status,
		Version:          Version,
		ManagerConnected: managerConnected,
		ManagerState:     h.manager.State().String(),
		WebSocketClients: h.hub.GetClientCount(),
		RecordingsPath:   h.locator.Root(),
		UptimeSeconds:    time.Since(h.startTime).Seconds(),
	})
}

// Live is the liveness probe. Answering at all is the signal.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// Ready is the readiness probe. The recordings root must be reachable;
// the manager session is allowed to be down since the supervisor keeps
// reconnecting it.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.locator.Root()); err != nil {
		NewResponseWriter(w, r).ServiceUnavailable("recordings directory not accessible")
		return
	}

	WriteSuccess(w, r, map[string]string{"status": "ready"})
}
