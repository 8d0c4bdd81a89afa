package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
stream:
  url: wss://gateway.example.com/v1/stream
  open_timeout: 5s
backend:
  base_url: https://gateway.example.com
subscriptions:
  instruments: ["265598", "8314"]
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.URL != "wss://gateway.example.com/v1/stream" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://gateway.example.com/v1/stream")
	}
	if cfg.Stream.OpenTimeout != 5*time.Second {
		t.Errorf("Stream.OpenTimeout = %v, want 5s", cfg.Stream.OpenTimeout)
	}
	if len(cfg.Subscriptions.Instruments) != 2 || cfg.Subscriptions.Instruments[1] != "8314" {
		t.Errorf("Subscriptions.Instruments = %v, want [265598 8314]", cfg.Subscriptions.Instruments)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_STREAM_HOST", "stream.internal:7443")

	yaml := `
stream:
  url: wss://${TEST_STREAM_HOST}/ws
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.URL != "wss://stream.internal:7443/ws" {
		t.Errorf("Stream.URL = %q, want %q", cfg.Stream.URL, "wss://stream.internal:7443/ws")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SYNCD_TEST_BACKEND=https://env.example.com\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SYNCD_TEST_BACKEND") })

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	path := writeTempFile(t, "config.yaml", "backend:\n  base_url: ${SYNCD_TEST_BACKEND}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "https://env.example.com")
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadEnvFile on missing file = %v, want nil", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "logging:\n  format: json\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.URL != DefaultStreamURL {
		t.Errorf("Stream.URL = %q, want default %q", cfg.Stream.URL, DefaultStreamURL)
	}
	if cfg.Stream.OpenTimeout != DefaultOpenTimeout {
		t.Errorf("Stream.OpenTimeout = %v, want default %v", cfg.Stream.OpenTimeout, DefaultOpenTimeout)
	}
	if cfg.Stream.MaxReconnectAttempts != 5 {
		t.Errorf("Stream.MaxReconnectAttempts = %d, want 5", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.Stream.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("Stream.ReconnectMaxDelay = %v, want 30s", cfg.Stream.ReconnectMaxDelay)
	}
	if !cfg.Stream.HandshakeEnabled() {
		t.Error("HandshakeEnabled() = false, want true by default")
	}
	if cfg.Store.HistorySize != 50 {
		t.Errorf("Store.HistorySize = %d, want 50", cfg.Store.HistorySize)
	}
	if cfg.Store.CoreModelSuffix != "Core" {
		t.Errorf("Store.CoreModelSuffix = %q, want Core", cfg.Store.CoreModelSuffix)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json (explicit value kept)", cfg.Logging.Format)
	}
}

func TestHandshakeDisabled(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "stream:\n  handshake: false\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Stream.HandshakeEnabled() {
		t.Error("HandshakeEnabled() = true, want false")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.Stream.URL = "" },
			wantErr: "stream.url is required",
		},
		{
			name:    "http stream url",
			mutate:  func(c *Config) { c.Stream.URL = "http://localhost/ws" },
			wantErr: `stream.url must use scheme ws or wss, got "http"`,
		},
		{
			name: "max delay below base",
			mutate: func(c *Config) {
				c.Stream.ReconnectBaseDelay = 2 * time.Second
				c.Stream.ReconnectMaxDelay = time.Second
			},
			wantErr: "stream.reconnect_max_delay (1s) cannot be less than reconnect_base_delay (2s)",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Stream.MaxReconnectAttempts = -1 },
			wantErr: "stream.max_reconnect_attempts must be >= 0",
		},
		{
			name:    "backend scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "ftp://x" },
			wantErr: `backend.base_url must use scheme http or https, got "ftp"`,
		},
		{
			name:    "dotted core suffix",
			mutate:  func(c *Config) { c.Store.CoreModelSuffix = "a.Core" },
			wantErr: `store.core_model_suffix must not contain '.', got "a.Core"`,
		},
		{
			name:    "blank instrument",
			mutate:  func(c *Config) { c.Subscriptions.Instruments = []string{"265598", " "} },
			wantErr: "subscriptions.instruments[1] is empty",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
