// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"context"
	"time"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/recordings"
	"github.com/issabel-tools/callmonitor/internal/websocket"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// CallManager is the subset of the manager session the HTTP surface
// drives. Satisfied by *ami.Client.
type CallManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	State() ami.State
}

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	manager   CallManager
	hub       *websocket.Hub
	locator   *recordings.Locator
	wsOrigins []string
	startTime time.Time
}

// NewHandler creates the HTTP handler set. wsOrigins lists the origins
// allowed to open WebSocket connections; "*" allows any origin, an
// empty list falls back to same-origin checking.
func NewHandler(manager CallManager, hub *websocket.Hub, locator *recordings.Locator, wsOrigins []string) *Handler {
	return &Handler{
		manager:   manager,
		hub:       hub,
		locator:   locator,
		wsOrigins: wsOrigins,
		startTime: time.Now(),
	}
}
