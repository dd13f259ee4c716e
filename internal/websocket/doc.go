// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

/*
Package websocket pushes live call events to connected browsers.

It uses the gorilla/websocket library with a hub-client architecture.
The hub tracks every connected client plus per-extension groups; a
client joins a group by sending a subscribe frame and leaves it with
an unsubscribe frame. Call events are delivered twice over: scoped
to the clients watching the event's extension (call_event), and to
every client as a monitoring firehose (call_event_all).

Key Components:

  - Hub: Central broker that manages clients, extension groups, and fan-out
  - Client: A single WebSocket connection with read/write goroutines
  - Message: Typed envelope {"type": ..., "data": ...}

Each client has two goroutines:
  - readPump: Reads subscribe/unsubscribe/ping frames, handles pongs
  - writePump: Writes hub messages and periodic pings

Message Types:

	call_event      - call event scoped to a subscribed extension
	call_event_all  - call event delivered to every client
	subscribe       - client request to watch an extension
	unsubscribe     - client request to stop watching an extension
	subscribed      - hub confirmation of a subscribe
	unsubscribed    - hub confirmation of an unsubscribe
	ping / pong     - application-level keepalive

Slow clients are evicted: if a client's send buffer fills, the hub
closes it rather than stall the other clients.
*/
package websocket
