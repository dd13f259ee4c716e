// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/issabel-tools/callmonitor/internal/config"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

// Sentinel errors surfaced by the session.
var (
	// ErrLoginFailed wraps every handshake failure; the server-reported
	// message, when present, is appended to it.
	ErrLoginFailed = errors.New("manager login failed")

	// ErrNotConnected is returned by Send when no session is active.
	ErrNotConnected = errors.New("manager session not connected")
)

// logoffWriteTimeout bounds the best-effort logoff during Disconnect.
const logoffWriteTimeout = 2 * time.Second

// State is the session lifecycle state.
type State int32

// Session states, in the order a healthy session passes through them.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingLogin
	StateConnected
	StateDisconnecting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLogin:
		return "awaiting_login"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// EventSink receives mapped call events from the read loop. Implemented by
// the event bus; kept as an interface so the session does not depend on it.
type EventSink interface {
	Publish(ctx context.Context, ev *CallEvent) error
}

// Client owns one TCP session to the manager interface: the login handshake,
// a single background read loop, and action writes. All protocol I/O is
// logically sequential per session; the handshake completes before the read
// loop takes over the stream.
//
// The only fatal condition is Connect failing the handshake. Once connected
// the session degrades to disconnected on stream faults instead of
// propagating errors to unrelated code.
type Client struct {
	cfg  config.ManagerConfig
	sink EventSink

	mu     sync.Mutex // guards the session fields below
	state  State
	conn   net.Conn
	reader *Reader
	writer *Writer
	cancel context.CancelFunc
	done   chan struct{} // closed when the read loop exits
	err    error         // stream fault; nil after an operator disconnect

	writeMu sync.Mutex // serializes actions on the wire
	wg      sync.WaitGroup
}

// NewClient creates a session client. Connect must be called before events
// flow.
func NewClient(cfg config.ManagerConfig, sink EventSink) *Client {
	return &Client{cfg: cfg, sink: sink}
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a session is established with its read loop
// running.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Done returns a channel closed when the current session's read loop exits,
// or nil when no session has been started. After the channel fires, Err
// distinguishes a stream fault from an operator disconnect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the stream fault that ended the last session, or nil when the
// session ended by request (or is still running).
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect establishes the session: TCP dial, banner discard, login exchange,
// then the background read loop. Calling Connect on an already-connected
// session is a logged no-op. On any handshake failure the session is fully
// torn down before the error is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		logging.Info().Msg("manager already connected")
		return nil
	case StateDisconnected:
		c.state = StateConnecting
		c.err = nil
		c.mu.Unlock()
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect: session is %s", state)
	}

	conn, reader, writer, err := c.handshake(ctx)
	if err != nil {
		metrics.ManagerLoginFailures.Inc()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.reader = reader
	c.writer = writer
	c.cancel = cancel
	c.done = done
	c.err = nil
	c.state = StateConnected
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(loopCtx, reader, done)

	metrics.ManagerConnects.Inc()
	metrics.ManagerConnected.Set(1)
	logging.Info().
		Str("address", c.cfg.Address()).
		Str("username", c.cfg.Username).
		Msg("manager login success")
	return nil
}

// handshake dials and performs the login exchange. The whole exchange,
// banner consumption included, is bounded by the configured login timeout
// so a silent server cannot wedge Connect.
func (c *Client) handshake(ctx context.Context) (net.Conn, *Reader, *Writer, error) {
	dialer := net.Dialer{Timeout: c.cfg.LoginTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: dial %s: %v", ErrLoginFailed, c.cfg.Address(), err)
	}

	deadline := time.Now().Add(c.cfg.LoginTimeout)
	_ = conn.SetDeadline(deadline)

	reader := NewReader(conn)
	writer := NewWriter(conn)

	if err := reader.DiscardUntilBlank(); err != nil {
		_ = conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: banner: %v", ErrLoginFailed, err)
	}

	c.mu.Lock()
	c.state = StateAwaitingLogin
	c.mu.Unlock()

	login := Action{
		{"Action", "Login"},
		{"Username", c.cfg.Username},
		{"Secret", c.cfg.LoginSecret()},
		{"Events", "on"},
		{"ActionID", newActionID()},
	}
	if err := writer.WriteAction(login); err != nil {
		_ = conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: send login: %v", ErrLoginFailed, err)
	}

	resp, err := readResponseBlock(reader)
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: no response: %v", ErrLoginFailed, err)
	}

	if !strings.EqualFold(resp.Get("Response"), "Success") {
		msg := resp.Get("Message")
		if msg == "" {
			msg = "unknown reason"
		}
		_ = conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	// The read loop waits indefinitely for events.
	_ = conn.SetDeadline(time.Time{})
	return conn, reader, writer, nil
}

// readResponseBlock reads until a non-empty block arrives. Empty blocks are
// protocol no-ops; the connection deadline bounds the overall wait.
func readResponseBlock(reader *Reader) (*AttributeBlock, error) {
	for {
		block, err := reader.ReadBlock()
		if err != nil {
			return nil, err
		}
		if block != nil {
			return block, nil
		}
	}
}

// readLoop is the session's background task: it decodes blocks until
// cancellation or a stream fault, maps event blocks and publishes events
// carrying a channel. Protocol noise never terminates the loop.
func (c *Client) readLoop(ctx context.Context, reader *Reader, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := reader.ReadBlock()
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation raced the read; Disconnect owns cleanup.
				return
			}
			logging.Warn().Err(err).Msg("manager stream ended")
			c.recordFault(err)
			return
		}
		if block == nil {
			continue
		}

		eventName := block.Get("Event")
		if eventName == "" {
			continue
		}

		ev := MapEvent(eventName, block)
		if ev.Channel == "" {
			continue
		}

		if err := c.sink.Publish(ctx, ev); err != nil {
			logging.Debug().Err(err).Str("event_type", ev.EventType).Msg("event publish failed")
			continue
		}
		logging.Debug().
			Str("event_type", ev.EventType).
			Str("channel", ev.Channel).
			Str("extension", ev.Extension).
			Msg("manager event")
	}
}

// recordFault tears the session down after a stream fault. The dead socket
// is closed and all handles released here, so a reconnect through Connect
// starts clean and a late Disconnect finds nothing to close.
func (c *Client) recordFault(err error) {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.reader = nil
	c.writer = nil
	c.cancel = nil
	c.err = err
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	metrics.ManagerConnected.Set(0)
	metrics.ManagerStreamFaults.Inc()
}

// Disconnect tears the session down: cancels the read loop, sends a
// best-effort logoff, waits for the loop to exit and releases all handles.
// Idempotent and never fails; a subsequent Connect starts clean.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.conn == nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	conn := c.conn
	writer := c.writer
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Best-effort logoff; failures are swallowed, the peer may already be
	// gone.
	_ = conn.SetWriteDeadline(time.Now().Add(logoffWriteTimeout))
	c.writeMu.Lock()
	_ = writer.WriteAction(Action{{"Action", "Logoff"}})
	c.writeMu.Unlock()

	// Closing the socket unblocks any in-flight read.
	_ = conn.Close()
	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.reader = nil
	c.writer = nil
	c.cancel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	metrics.ManagerConnected.Set(0)
	logging.Info().Msg("manager disconnected")
}

// Send writes an arbitrary action on the active session. Writes are
// serialized; concurrent actions never interleave on the wire.
func (c *Client) Send(action Action) error {
	c.mu.Lock()
	if c.state != StateConnected || c.writer == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	writer := c.writer
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writer.WriteAction(action)
}

// newActionID returns a fresh correlation identifier for one action.
func newActionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
