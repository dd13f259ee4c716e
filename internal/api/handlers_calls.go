// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"errors"
	"net/http"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/logging"
)

// CallsStatus is the payload of the calls status endpoint.
type CallsStatus struct {
	Connected        bool   `json:"connected"`
	ManagerState     string `json:"managerState"`
	WebSocketClients int    `json:"webSocketClients"`
	ExtensionGroups  int    `json:"extensionGroups"`
}

// GetCallsStatus reports the manager session state and fan-out counters.
func (h *Handler) GetCallsStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, CallsStatus{
		Connected:        h.manager.IsConnected(),
		ManagerState:     h.manager.State().String(),
		WebSocketClients: h.hub.GetClientCount(),
		ExtensionGroups:  h.hub.GetGroupsCount(),
	})
}

// ConnectCalls establishes the manager session on demand. Connecting an
// already-connected session is a no-op and still reports success.
func (h *Handler) ConnectCalls(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Connect(r.Context()); err != nil {
		logging.Warn().Err(err).Msg("Manual manager connect failed")

		rw := NewResponseWriter(w, r)
		if errors.Is(err, ami.ErrLoginFailed) {
			rw.Error(http.StatusBadGateway, ErrCodeManagerLoginFailed, "Manager rejected login credentials")
			return
		}
		rw.ServiceUnavailable("Could not reach the manager interface")
		return
	}

	WriteSuccess(w, r, CallsStatus{
		Connected:        h.manager.IsConnected(),
		ManagerState:     h.manager.State().String(),
		WebSocketClients: h.hub.GetClientCount(),
		ExtensionGroups:  h.hub.GetGroupsCount(),
	})
}

// DisconnectCalls tears down the manager session. Disconnecting an
// already-disconnected session is a no-op.
func (h *Handler) DisconnectCalls(w http.ResponseWriter, r *http.Request) {
	h.manager.Disconnect()

	WriteSuccess(w, r, CallsStatus{
		Connected:        h.manager.IsConnected(),
		ManagerState:     h.manager.State().String(),
		WebSocketClients: h.hub.GetClientCount(),
		ExtensionGroups:  h.hub.GetGroupsCount(),
	})
}
