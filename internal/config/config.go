// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package config provides layered configuration for CallMonitor using
// Koanf v2: built-in defaults, an optional YAML config file, then
// environment variables, highest priority last.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
//
// Thread safety: Config is immutable after Load() and safe for concurrent
// read access.
type Config struct {
	Manager    ManagerConfig    `koanf:"manager"`
	Recordings RecordingsConfig `koanf:"recordings"`
	Bridge     BridgeConfig     `koanf:"bridge"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ManagerConfig holds the connection settings for the PBX manager interface
// (Asterisk AMI as shipped with Issabel).
//
// Environment variables:
//   - MANAGER_HOST: manager host (default: localhost)
//   - MANAGER_PORT: manager port (default: 5038)
//   - MANAGER_USERNAME: manager account name
//   - MANAGER_SECRET: manager account secret
//   - MANAGER_PASSWORD: legacy alias for MANAGER_SECRET (Issabel naming)
type ManagerConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	// Secret is the manager account secret sent in the login action.
	Secret string `koanf:"secret"`
	// Password is a legacy alias for Secret; used only when Secret is empty.
	Password string `koanf:"password"`

	// LoginTimeout bounds the handshake: banner consumption and the wait
	// for the login response block. Default: 5s.
	LoginTimeout time.Duration `koanf:"login_timeout"`
}

// Address returns the host:port dial target for the manager interface.
func (m ManagerConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// LoginSecret returns Secret, falling back to the legacy Password field.
func (m ManagerConfig) LoginSecret() string {
	if m.Secret != "" {
		return m.Secret
	}
	return m.Password
}

// RecordingsConfig holds the recording locator settings.
//
// Environment variables:
//   - RECORDINGS_PATH: filesystem root scanned for call recordings
type RecordingsConfig struct {
	// Path is the root directory scanned recursively for recording files.
	Path string `koanf:"path"`
}

// Dispatch pool defaults, shared with callers that construct a
// BridgeConfig by hand.
const (
	DefaultDispatchWorkers = 4
	DefaultQueueSize       = 256
)

// BridgeConfig tunes the event bridge dispatch pool.
type BridgeConfig struct {
	// DispatchWorkers is the number of goroutines forwarding call events
	// to the websocket hub. Default: 4.
	DispatchWorkers int `koanf:"dispatch_workers"`

	// QueueSize is the dispatch queue capacity; events beyond it are
	// dropped rather than blocking the bus subscription. Default: 256.
	QueueSize int `koanf:"queue_size"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed origins for browser clients, "*" for any.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-client request budget per RateLimitWindow.
	// Zero disables rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Manager.Host == "" {
		return fmt.Errorf("manager.host is required")
	}
	if c.Manager.Port < 1 || c.Manager.Port > 65535 {
		return fmt.Errorf("manager.port %d out of range 1-65535", c.Manager.Port)
	}
	if c.Manager.Username == "" {
		return fmt.Errorf("manager.username is required")
	}
	if c.Manager.LoginSecret() == "" {
		return fmt.Errorf("manager.secret is required")
	}
	if c.Manager.LoginTimeout <= 0 {
		return fmt.Errorf("manager.login_timeout must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Bridge.DispatchWorkers < 1 {
		return fmt.Errorf("bridge.dispatch_workers must be at least 1")
	}
	if c.Bridge.QueueSize < 1 {
		return fmt.Errorf("bridge.queue_size must be at least 1")
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("server.rate_limit_reqs cannot be negative")
	}
	return nil
}
