package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("stream.url", c.Stream.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Stream.OpenTimeout <= 0 {
		return errors.New("stream.open_timeout must be > 0")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must be >= 0")
	}
	if c.Stream.ReconnectBaseDelay <= 0 {
		return errors.New("stream.reconnect_base_delay must be > 0")
	}
	if c.Stream.ReconnectMaxDelay < c.Stream.ReconnectBaseDelay {
		return fmt.Errorf("stream.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Stream.ReconnectMaxDelay, c.Stream.ReconnectBaseDelay)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if err := validateURL("backend.base_url", c.Backend.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Backend.AuthPollInterval < 0 {
		return errors.New("backend.auth_poll_interval must be >= 0")
	}

	if c.Store.HistorySize < 1 {
		return errors.New("store.history_size must be >= 1")
	}
	if c.Store.HistoryMinDelta < 0 {
		return errors.New("store.history_min_delta must be >= 0")
	}
	if strings.Contains(c.Store.CoreModelSuffix, ".") {
		return fmt.Errorf("store.core_model_suffix must not contain '.', got %q", c.Store.CoreModelSuffix)
	}

	for i, id := range c.Subscriptions.Instruments {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("subscriptions.instruments[%d] is empty", i)
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s, got %q", field, strings.Join(schemes, " or "), u.Scheme)
}
