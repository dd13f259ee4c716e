// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/issabel-tools/callmonitor/internal/ami"
	"github.com/issabel-tools/callmonitor/internal/config"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

// sessionPollInterval is how often the bridge checks whether a manually
// disconnected session has been reconnected through the API.
const sessionPollInterval = time.Second

// ManagerSession is the slice of the manager client the bridge drives.
type ManagerSession interface {
	Connect(ctx context.Context) error
	Disconnect()
	Done() <-chan struct{}
	Err() error
}

// EventSource delivers the call event stream the bridge forwards.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *ami.CallEvent, error)
}

// Broadcaster fans a call event out to connected websocket clients.
type Broadcaster interface {
	BroadcastCallEvent(extension string, event *ami.CallEvent)
	BroadcastCallEventAll(event *ami.CallEvent)
}

// Bridge connects the manager session to the websocket hub: it logs the
// session in, subscribes to the event stream, and dispatches each event
// to the extension group and the firehose through a bounded worker pool.
//
// Bridge implements suture.Service. A stream fault makes Serve return an
// error so the supervisor reconnects with backoff; a manual disconnect
// through the API keeps Serve running, forwarding nothing until the
// session is reconnected.
type Bridge struct {
	cfg     config.BridgeConfig
	session ManagerSession
	source  EventSource
	hub     Broadcaster
}

// New creates a bridge. Workers and queue size come from cfg; zero values
// fall back to the configuration defaults.
func New(cfg config.BridgeConfig, session ManagerSession, source EventSource, hub Broadcaster) *Bridge {
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = config.DefaultDispatchWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultQueueSize
	}
	return &Bridge{cfg: cfg, session: session, source: source, hub: hub}
}

// Serve runs the bridge until ctx is cancelled or the manager stream
// faults. Designed for suture supervision: a returned error triggers a
// restart with backoff, which doubles as the reconnect policy.
func (b *Bridge) Serve(ctx context.Context) error {
	if err := b.session.Connect(ctx); err != nil {
		return fmt.Errorf("connecting manager session: %w", err)
	}

	events, err := b.source.Subscribe(ctx)
	if err != nil {
		b.session.Disconnect()
		return fmt.Errorf("subscribing to call events: %w", err)
	}

	jobs := make(chan *ami.CallEvent, b.cfg.QueueSize)
	var wg sync.WaitGroup
	for i := 0; i < b.cfg.DispatchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				b.dispatch(ev)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
		b.session.Disconnect()
	}()

	logging.Info().
		Int("workers", b.cfg.DispatchWorkers).
		Int("queue_size", b.cfg.QueueSize).
		Msg("event bridge started")

	// sessionDone observes the current manager session. It is set to nil
	// after a manual disconnect and re-armed when a new session appears.
	sessionDone := b.session.Done()

	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("event bridge stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// The bus closed underneath us, usually shutdown.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("call event stream closed")
			}
			select {
			case jobs <- ev:
			default:
				metrics.EventsDropped.Inc()
				logging.Warn().
					Str("event_type", ev.EventType).
					Str("channel", ev.Channel).
					Msg("dispatch queue full, dropping call event")
			}

		case <-sessionDone:
			if err := b.session.Err(); err != nil {
				return fmt.Errorf("manager stream fault: %w", err)
			}
			// Operator disconnect. Keep forwarding whatever is still
			// buffered and wait for a reconnect through the API.
			logging.Info().Msg("manager session disconnected, bridge idle")
			sessionDone = nil

		case <-ticker.C:
			if sessionDone == nil {
				if d := b.session.Done(); d != nil && !isClosed(d) {
					logging.Info().Msg("manager session reconnected, bridge resuming")
					sessionDone = d
				}
			}
		}
	}
}

// dispatch forwards one event to its extension group and the firehose.
func (b *Bridge) dispatch(ev *ami.CallEvent) {
	if ev.Extension != "" {
		b.hub.BroadcastCallEvent(ev.Extension, ev)
	}
	b.hub.BroadcastCallEventAll(ev)
}

// String names the bridge in supervisor logs.
func (b *Bridge) String() string {
	return "event-bridge"
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
