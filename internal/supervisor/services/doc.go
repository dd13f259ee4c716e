// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package services contains suture.Service wrappers for components that
// do not implement the Serve(ctx) pattern themselves.
//
// The manager bridge implements suture.Service directly and needs no
// wrapper; the WebSocket hub and the HTTP server are adapted here.
package services
