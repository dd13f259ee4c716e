// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"net/http"
	"net/url"

	gorillaws "github.com/gorilla/websocket"

	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/websocket"
)

// WebSocket handles GET /api/v1/ws, upgrading the connection and
// attaching it to the hub. Clients then subscribe to extension groups
// over the socket itself.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := gorillaws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// checkWebSocketOrigin applies the configured CORS origins to WebSocket
// upgrades. Browsers enforce CORS preflight on XHR but not on WebSocket
// handshakes, so the origin check has to happen here too.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}

	if len(h.wsOrigins) == 0 {
		return sameOrigin(origin, r.Host)
	}

	for _, allowed := range h.wsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}
