// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

/*
Package supervisor provides suture-based process supervision.

The supervisor tree has two layers under the root:

	callmonitor
	├── events-layer
	│   ├── websocket-hub    (services.HubService)
	│   └── event-bridge     (bridge.Bridge, implements suture.Service)
	└── api-layer
	    └── http-server      (services.HTTPServerService)

A bridge failure (manager stream fault) triggers a supervised restart
with exponential backoff, which doubles as the manager reconnection
strategy. The API layer keeps serving while the events layer recovers.

Supervisor events are logged through sutureslog, bridged to zerolog via
the logging package's slog handler.
*/
package supervisor
