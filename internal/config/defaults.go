package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStreamURL            = "ws://localhost:5000/ws"
	DefaultOpenTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultStreamBufferSize     = 1000
	DefaultBackendURL           = "http://localhost:5000"
	DefaultAuthStatusPath       = "/api/auth/status"
	DefaultLogoutPath           = "/api/logout"
	DefaultBackendTimeout       = 10 * time.Second
	DefaultMaxRetries           = 3
	DefaultAuthPollInterval     = 15 * time.Second
	DefaultHistorySize          = 50
	DefaultHistoryMinDelta      = 0.01
	DefaultCoreModelSuffix      = "Core"
	DefaultErrorHistory         = 20
	DefaultServerAddr           = ":8080"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	// Stream defaults
	s := &c.Stream
	if s.URL == "" {
		s.URL = DefaultStreamURL
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = DefaultOpenTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.PingTimeout == 0 {
		s.PingTimeout = DefaultPingTimeout
	}
	if s.MaxReconnectAttempts == 0 {
		s.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if s.ReconnectBaseDelay == 0 {
		s.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if s.ReconnectMaxDelay == 0 {
		s.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if s.BufferSize == 0 {
		s.BufferSize = DefaultStreamBufferSize
	}

	// Backend defaults
	b := &c.Backend
	if b.BaseURL == "" {
		b.BaseURL = DefaultBackendURL
	}
	if b.AuthStatusPath == "" {
		b.AuthStatusPath = DefaultAuthStatusPath
	}
	if b.LogoutPath == "" {
		b.LogoutPath = DefaultLogoutPath
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultBackendTimeout
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = DefaultMaxRetries
	}
	if b.AuthPollInterval == 0 {
		b.AuthPollInterval = DefaultAuthPollInterval
	}

	// Store defaults
	if c.Store.HistorySize == 0 {
		c.Store.HistorySize = DefaultHistorySize
	}
	if c.Store.HistoryMinDelta == 0 {
		c.Store.HistoryMinDelta = DefaultHistoryMinDelta
	}
	if c.Store.CoreModelSuffix == "" {
		c.Store.CoreModelSuffix = DefaultCoreModelSuffix
	}
	if c.Store.ErrorHistory == 0 {
		c.Store.ErrorHistory = DefaultErrorHistory
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
