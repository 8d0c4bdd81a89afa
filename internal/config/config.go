package config

import "time"

// Config is the root configuration for a syncd instance.
type Config struct {
	Stream        StreamConfig        `yaml:"stream"`
	Backend       BackendConfig       `yaml:"backend"`
	Store         StoreConfig         `yaml:"store"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// StreamConfig holds the push connection settings. URL is the single
// endpoint for the event stream.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	OpenTimeout          time.Duration `yaml:"open_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	Handshake            *bool         `yaml:"handshake"` // nil = default (true)
	BufferSize           int           `yaml:"buffer_size"`
}

// BackendConfig holds the request/response collaborators (auth status, logout).
type BackendConfig struct {
	BaseURL          string        `yaml:"base_url"`
	AuthStatusPath   string        `yaml:"auth_status_path"`
	LogoutPath       string        `yaml:"logout_path"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	AuthPollInterval time.Duration `yaml:"auth_poll_interval"`
}

// StoreConfig holds normalized store settings.
type StoreConfig struct {
	HistorySize       int     `yaml:"history_size"`
	HistoryMinDelta   float64 `yaml:"history_min_delta"`
	CoreModelSuffix   string  `yaml:"core_model_suffix"`
	ClearOnDisconnect bool    `yaml:"clear_on_disconnect"`
	ErrorHistory      int     `yaml:"error_history"`
}

// SubscriptionsConfig lists instruments watched for the life of the process.
type SubscriptionsConfig struct {
	Instruments []string `yaml:"instruments"`
}

// ServerConfig holds the observer HTTP surface settings.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// HandshakeEnabled reports whether the hello frame is sent on open.
func (s StreamConfig) HandshakeEnabled() bool {
	return s.Handshake == nil || *s.Handshake
}
