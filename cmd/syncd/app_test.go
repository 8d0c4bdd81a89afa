package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-stream/internal/config"
	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/store"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("not json: %v: %s", err, out)
	}
	if line["msg"] != "shown" || line["k"] != "v" {
		t.Errorf("unexpected line: %v", line)
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	off := false
	cfg.Stream.Handshake = &off

	sc := storeConfig(cfg.Store)
	if sc.HistorySize != config.DefaultHistorySize {
		t.Errorf("HistorySize = %d", sc.HistorySize)
	}
	if !sc.HistoryMinDelta.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("HistoryMinDelta = %s", sc.HistoryMinDelta)
	}

	mc := managerConfig(cfg.Stream)
	if mc.Handshake {
		t.Error("Handshake should follow config")
	}
	if mc.Client.URL != cfg.Stream.URL || mc.OpenTimeout != cfg.Stream.OpenTimeout {
		t.Errorf("unexpected manager config: %+v", mc)
	}
	if !strings.HasPrefix(mc.ClientName, "portfolio-stream/") {
		t.Errorf("ClientName = %q", mc.ClientName)
	}
}

// streamServer answers subscribe frames with one market_data frame.
type streamServer struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (s *streamServer) handle(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.mu.Lock()
		s.frames = append(s.frames, frame)
		s.mu.Unlock()

		if frame["type"] == "subscribe" {
			reply := `{"type":"market_data","symbol":"` + frame["conid"].(string) + `","last_price":150,"quantity":10}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}

func (s *streamServer) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		out = append(out, f["type"].(string))
	}
	return out
}

func TestApp_EndToEnd(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	stream := &streamServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		stream.handle(conn)
	}))
	defer wsSrv.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case config.DefaultAuthStatusPath:
			w.Write([]byte(`{"authenticated":true,"connected":true}`))
		case config.DefaultLogoutPath:
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	cfg := &config.Config{}
	cfg.Stream.URL = "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	cfg.Backend.BaseURL = backend.URL
	cfg.Backend.AuthPollInterval = time.Hour
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Subscriptions.Instruments = []string{"AAPL"}
	cfg.ApplyDefaults()

	a := newApp(cfg, newLogger(config.LoggingConfig{Level: "error"}, io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var inst store.Instrument
	deadline := time.Now().Add(5 * time.Second)
	for {
		var ok bool
		if inst, ok = a.store.Instrument("AAPL"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("AAPL never arrived; state=%+v frames=%v", a.manager.State(), stream.types())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !inst.Value.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Value = %s, want 1500", inst.Value)
	}
	if a.manager.State().Status != connection.StatusConnected {
		t.Errorf("Status = %s", a.manager.State().Status)
	}

	types := stream.types()
	if len(types) < 2 || types[0] != "hello" || types[1] != "subscribe" {
		t.Errorf("frames = %v, want hello then subscribe", types)
	}

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/instruments/AAPL", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET instrument = %d: %s", rec.Code, rec.Body.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	a.stop(shutdownCtx)

	if got := a.manager.State().Status; got != connection.StatusDisconnected {
		t.Errorf("after stop Status = %s", got)
	}
	if len(a.subs.Active()) != 0 {
		t.Errorf("Active after stop = %v", a.subs.Active())
	}
}
