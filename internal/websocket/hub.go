// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeCallEvent    = "call_event"
	MessageTypeCallEventAll = "call_event_all"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// GroupAll receives every call event regardless of extension.
const GroupAll = "*"

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionData is the payload of subscribe/unsubscribe messages.
type SubscriptionData struct {
	Extension string `json:"extension"`
}

// broadcastJob targets a message at one extension group, or at every
// connected client when Group is GroupAll.
type broadcastJob struct {
	Group   string
	Message Message
}

// subscription moves a client in or out of an extension group. Routed
// through the hub loop so group state has a single writer.
type subscription struct {
	client    *Client
	extension string
	join      bool
}

// Hub maintains the set of active clients and the extension groups they
// joined, and fans call events out to them.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool
	broadcast  chan broadcastJob
	subscribe  chan subscription
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan broadcastJob, 256),
		subscribe:  make(chan subscription, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
	}
}

// RunWithContext starts the hub with context support for graceful shutdown.
// This method is designed for use with suture supervision.
//
// When the context is canceled:
//  1. All connected clients are gracefully closed
//  2. The method returns ctx.Err()
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister/subscription)
// - Priority 3: Broadcast messages
// This ensures group membership is always consistent before events fan out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		case sub := <-h.subscribe:
			h.applySubscription(sub)
			continue
		default:
			// No lifecycle events pending
		}

		// Priority 3: Handle broadcast messages or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case sub := <-h.subscribe:
			h.applySubscription(sub)

		case job := <-h.broadcast:
			h.broadcastToGroup(job)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.dropFromGroupsLocked(client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// applySubscription moves a client in or out of an extension group and
// confirms the change back to the client. Join and leave are idempotent.
func (h *Hub) applySubscription(sub subscription) {
	h.mu.Lock()
	if _, ok := h.clients[sub.client]; !ok {
		// Client already unregistered; its send channel is closed.
		h.mu.Unlock()
		return
	}

	if sub.join {
		group := h.groups[sub.extension]
		if group == nil {
			group = make(map[*Client]bool)
			h.groups[sub.extension] = group
		}
		group[sub.client] = true
	} else if group := h.groups[sub.extension]; group != nil {
		delete(group, sub.client)
		if len(group) == 0 {
			delete(h.groups, sub.extension)
		}
	}
	h.mu.Unlock()

	confirm := Message{
		Type: MessageTypeSubscribed,
		Data: SubscriptionData{Extension: sub.extension},
	}
	if !sub.join {
		confirm.Type = MessageTypeUnsubscribed
	}
	select {
	case sub.client.send <- confirm:
	default:
	}

	logging.Debug().
		Str("extension", sub.extension).
		Bool("join", sub.join).
		Msg("websocket subscription changed")
}

// dropFromGroupsLocked removes a client from every extension group.
// Caller must hold h.mu.
func (h *Hub) dropFromGroupsLocked(client *Client) {
	for ext, group := range h.groups {
		delete(group, client)
		if len(group) == 0 {
			delete(h.groups, ext)
		}
	}
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. ctx.Err() is NOT logged as an error because cancellation
// is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// broadcastToGroup sends a message to the targeted extension group, or to
// every connected client for GroupAll, in a deterministic order.
// DETERMINISM: Sorts clients by ID to ensure consistent delivery order.
func (h *Hub) broadcastToGroup(job broadcastJob) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var members map[*Client]bool
	if job.Group == GroupAll {
		members = h.clients
	} else {
		members = h.groups[job.Group]
	}
	if len(members) == 0 {
		return
	}

	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	// Track clients to remove (can't modify map during iteration)
	var toRemove []*Client

	for _, client := range clients {
		select {
		case client.send <- job.Message:
		default:
			// Channel full or closed, mark for removal
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		h.dropFromGroupsLocked(client)
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// closeAllClients gracefully closes all connected WebSocket clients.
// DETERMINISM: Closes clients in ID order for consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
	metrics.WebSocketClients.Set(0)
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// BroadcastCallEvent sends a call event to the clients subscribed to the
// event's extension.
func (h *Hub) BroadcastCallEvent(extension string, event *ami.CallEvent) {
	if extension == "" {
		return
	}
	job := broadcastJob{
		Group:   extension,
		Message: Message{Type: MessageTypeCallEvent, Data: event},
	}

	select {
	case h.broadcast <- job:
		metrics.BroadcastsSent.WithLabelValues("extension").Inc()
	default:
		logging.Warn().Str("extension", extension).Msg("broadcast channel full, dropping call event")
	}
}

// BroadcastCallEventAll sends a call event to every connected client.
func (h *Hub) BroadcastCallEventAll(event *ami.CallEvent) {
	job := broadcastJob{
		Group:   GroupAll,
		Message: Message{Type: MessageTypeCallEventAll, Data: event},
	}

	select {
	case h.broadcast <- job:
		metrics.BroadcastsSent.WithLabelValues("all").Inc()
	default:
		logging.Warn().Msg("broadcast channel full, dropping call event")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetGroupCount returns the number of clients subscribed to an extension.
func (h *Hub) GetGroupCount(extension string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[extension])
}

// GetGroupsCount returns the number of extension groups with at least one
// subscriber.
func (h *Hub) GetGroupsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}
