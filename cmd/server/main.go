// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package main is the entry point for the CallMonitor server.
//
// CallMonitor connects to the Asterisk Manager Interface of an Issabel
// PBX, maps call progress events onto a normalized shape, and fans them
// out to WebSocket clients grouped by extension. It also exposes an
// HTTP API for searching and streaming call recordings from disk.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and
//     config files (koanf v2)
//  2. Event bus: in-process Watermill pub/sub carrying call events
//  3. Manager client: AMI session with login handshake and read loop
//  4. WebSocket hub: extension-group fan-out to connected clients
//  5. Bridge: pumps bus events into the hub, supervised reconnection
//  6. HTTP server: REST API, recording streaming, Prometheus metrics
//
// All long-running components run under a suture supervisor tree; a
// manager stream fault restarts just the bridge, whose restart backoff
// doubles as the reconnection delay.
//
// # Configuration
//
// Configuration is loaded via koanf v2 with layered sources (highest
// priority wins): environment variables, config file, built-in
// defaults. Common settings:
//
//	export MANAGER_HOST=127.0.0.1
//	export MANAGER_PORT=5038
//	export MANAGER_USERNAME=monitor
//	export MANAGER_SECRET=secret
//	export RECORDINGS_PATH=/var/spool/asterisk/monitor
//	export PORT=8088
//	./callmonitor
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// manager session logs off, WebSocket clients receive close frames,
// and in-flight HTTP requests get 10 seconds to complete.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/api"
	"github.com/issabel-tools/callmonitor/internal/bridge"
	"github.com/issabel-tools/callmonitor/internal/config"
	"github.com/issabel-tools/callmonitor/internal/eventbus"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/recordings"
	"github.com/issabel-tools/callmonitor/internal/supervisor"
	"github.com/issabel-tools/callmonitor/internal/supervisor/services"
	ws "github.com/issabel-tools/callmonitor/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; configuration is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("manager", cfg.Manager.Address()).
		Str("recordings", cfg.Recordings.Path).
		Int("port", cfg.Server.Port).
		Msg("Starting CallMonitor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event pipeline: manager client publishes into the bus, the bridge
	// subscribes and feeds the hub.
	bus := eventbus.New()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	manager := ami.NewClient(cfg.Manager, bus)
	hub := ws.NewHub()
	eventBridge := bridge.New(cfg.Bridge, manager, bus, hub)

	locator := recordings.NewLocator(cfg.Recordings)
	if _, err := os.Stat(locator.Root()); err != nil {
		logging.Warn().Str("path", locator.Root()).Msg("Recordings directory not accessible at startup")
	}

	handler := api.NewHandler(manager, hub, locator, cfg.Server.CORSOrigins)
	cm := api.NewChiMiddlewareFromServer(cfg.Server)
	router := api.NewRouter(handler, cm)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
	}

	// Supervisor events log through sutureslog, bridged to zerolog.
	slogLogger := slog.New(logging.NewSlogHandler())

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddEventService(services.NewHubService(hub))
	tree.AddEventService(eventBridge)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
