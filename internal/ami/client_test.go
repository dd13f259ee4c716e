// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/issabel-tools/callmonitor/internal/config"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

//nolint:gochecknoinits // quiet logging during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// captureSink collects published events and signals each arrival.
type captureSink struct {
	mu     sync.Mutex
	events []*CallEvent
	ch     chan *CallEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan *CallEvent, 64)}
}

func (s *captureSink) Publish(_ context.Context, ev *CallEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.ch <- ev
	return nil
}

func (s *captureSink) wait(t *testing.T) *CallEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// fakeManager is a minimal manager endpoint for session tests.
type fakeManager struct {
	ln    net.Listener
	serve func(conn net.Conn)
}

// startFakeManager listens on loopback and runs serve for each connection.
func startFakeManager(t *testing.T, serve func(conn net.Conn)) config.ManagerConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()

	return config.ManagerConfig{
		Host:         "127.0.0.1",
		Port:         ln.Addr().(*net.TCPAddr).Port,
		Username:     "admin",
		Secret:       "amp111",
		LoginTimeout: time.Second,
	}
}

// acceptLogin performs the server side of the handshake and returns the
// login block, or nil if the exchange fails.
func acceptLogin(conn net.Conn, response string) *AttributeBlock {
	if _, err := conn.Write([]byte("Asterisk Call Manager/5.0.2\r\n\r\n")); err != nil {
		return nil
	}
	reader := NewReader(conn)
	block, err := reader.ReadBlock()
	if err != nil || block == nil {
		return nil
	}
	if _, err := conn.Write([]byte(response)); err != nil {
		return nil
	}
	return block
}

const loginOK = "Response: Success\r\nMessage: Authentication accepted\r\n\r\n"

func TestConnectAndReceiveEvents(t *testing.T) {
	events := make(chan string, 1)
	cfg := startFakeManager(t, func(conn net.Conn) {
		login := acceptLogin(conn, loginOK)
		if login == nil {
			return
		}
		if login.Get("Action") != "Login" || login.Get("Secret") != "amp111" {
			t.Errorf("unexpected login block: %+v", login)
		}
		if login.Get("ActionID") == "" {
			t.Error("login action missing ActionID")
		}
		if login.Get("Events") != "on" {
			t.Errorf("Events = %q, want on", login.Get("Events"))
		}
		_, _ = conn.Write([]byte(<-events))
		// Keep the connection open until the test finishes.
		_, _ = io.Copy(io.Discard, conn)
	})

	sink := newCaptureSink()
	client := NewClient(cfg, sink)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if got := client.State(); got != StateConnected {
		t.Fatalf("State() = %v, want connected", got)
	}

	published := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("Newstate"))

	events <- "Event: Newstate\r\nChannel: SIP/102-00000a1b\r\nCallerIDNum: 102\r\n\r\n"
	ev := sink.wait(t)
	if ev.EventType != "Newstate" || ev.Extension != "102" {
		t.Errorf("mapped event = %+v", ev)
	}

	// Publish accounting belongs to the event bus, not the session.
	if got := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("Newstate")); got != published {
		t.Errorf("EventsPublished = %v, want %v (session must not count publishes)", got, published)
	}
}

func TestConnectAlreadyConnectedIsNoOp(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		if acceptLogin(conn, loginOK) == nil {
			return
		}
		_, _ = io.Copy(io.Discard, conn)
	})

	client := NewClient(cfg, newCaptureSink())
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() should be a no-op, got %v", err)
	}
}

func TestConnectLoginRejected(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		acceptLogin(conn, "Response: Error\r\nMessage: Authentication failed\r\n\r\n")
		_ = conn.Close()
	})

	client := NewClient(cfg, newCaptureSink())
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("error = %v, want ErrLoginFailed", err)
	}
	if !strings.Contains(err.Error(), "Authentication failed") {
		t.Errorf("error %q should carry the server message", err)
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() after failed login = %v, want disconnected", got)
	}

	// The session tore down fully; a fresh connect attempt is allowed.
	if err := client.Connect(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("retry error = %v, want ErrLoginFailed", err)
	}
}

func TestConnectLoginTimeout(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		// Banner, then silence: never answer the login action.
		_, _ = conn.Write([]byte("Asterisk Call Manager/5.0.2\r\n\r\n"))
		reader := NewReader(conn)
		_, _ = reader.ReadBlock()
		time.Sleep(3 * time.Second)
		_ = conn.Close()
	})
	cfg.LoginTimeout = 300 * time.Millisecond

	client := NewClient(cfg, newCaptureSink())
	start := time.Now()
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("error = %v, want ErrLoginFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Connect took %v, login timeout not applied", elapsed)
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestChannelLessEventsAreDiscarded(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		if acceptLogin(conn, loginOK) == nil {
			return
		}
		// A control frame without a channel, a block without an Event
		// header, protocol noise, then a real event.
		_, _ = conn.Write([]byte("Event: FullyBooted\r\nStatus: Fully Booted\r\n\r\n"))
		_, _ = conn.Write([]byte("Response: Success\r\nPing: Pong\r\n\r\n"))
		_, _ = conn.Write([]byte("\r\n"))
		_, _ = conn.Write([]byte("Event: Hangup\r\nChannel: SIP/103-1\r\nCause: 16\r\n\r\n"))
		_, _ = io.Copy(io.Discard, conn)
	})

	sink := newCaptureSink()
	client := NewClient(cfg, sink)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ev := sink.wait(t)
	if ev.EventType != "Hangup" || ev.Channel != "SIP/103-1" {
		t.Errorf("first published event = %+v, channel-less frames must be discarded", ev)
	}

	sink.mu.Lock()
	count := len(sink.events)
	sink.mu.Unlock()
	if count != 1 {
		t.Errorf("published %d events, want 1", count)
	}
}

func TestStreamFaultLeavesSessionDisconnected(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		if acceptLogin(conn, loginOK) == nil {
			return
		}
		_ = conn.Close()
	})

	faults := testutil.ToFloat64(metrics.ManagerStreamFaults)

	client := NewClient(cfg, newCaptureSink())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	done := client.Done()
	if done == nil {
		t.Fatal("Done() = nil after Connect")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end after remote close")
	}

	if client.Err() == nil {
		t.Error("Err() = nil, want stream fault")
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
	if got := testutil.ToFloat64(metrics.ManagerStreamFaults); got != faults+1 {
		t.Errorf("ManagerStreamFaults = %v, want %v (one increment per fault)", got, faults+1)
	}

	// Cleanup after a fault must still be safe.
	client.Disconnect()
}

func TestStreamFaultReleasesSessionForReconnect(t *testing.T) {
	var conns atomic.Int32
	cfg := startFakeManager(t, func(conn net.Conn) {
		if acceptLogin(conn, loginOK) == nil {
			return
		}
		// The first session faults, replacements stay up.
		if conns.Add(1) == 1 {
			_ = conn.Close()
			return
		}
		_, _ = io.Copy(io.Discard, conn)
	})

	client := NewClient(cfg, newCaptureSink())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end after remote close")
	}

	client.mu.Lock()
	held := client.conn != nil
	client.mu.Unlock()
	if held {
		t.Error("socket still held after stream fault")
	}

	// A disconnect queued before the operator reconnects must be a no-op.
	client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect after fault: %v", err)
	}
	defer client.Disconnect()
	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after reconnect")
	}
	if err := client.Err(); err != nil {
		t.Errorf("Err() = %v after reconnect, want nil", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	cfg := startFakeManager(t, func(conn net.Conn) {
		if acceptLogin(conn, loginOK) == nil {
			return
		}
		_, _ = io.Copy(io.Discard, conn)
	})

	client := NewClient(cfg, newCaptureSink())

	// Disconnect before any connect is a no-op.
	client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.Disconnect()
	client.Disconnect()

	if client.Err() != nil {
		t.Errorf("Err() after manual disconnect = %v, want nil", client.Err())
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}

	// A fresh connect proceeds cleanly after disconnect.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	client.Disconnect()
}

func TestSendRequiresConnection(t *testing.T) {
	client := NewClient(config.ManagerConfig{Host: "127.0.0.1", Port: 5038, LoginTimeout: time.Second}, newCaptureSink())
	if err := client.Send(Action{{"Action", "Ping"}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}
