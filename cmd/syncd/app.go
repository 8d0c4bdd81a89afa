package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-stream/internal/config"
	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/metrics"
	"github.com/rickgao/portfolio-stream/internal/router"
	"github.com/rickgao/portfolio-stream/internal/server"
	"github.com/rickgao/portfolio-stream/internal/session"
	"github.com/rickgao/portfolio-stream/internal/store"
	"github.com/rickgao/portfolio-stream/internal/subscription"
	"github.com/rickgao/portfolio-stream/internal/version"
)

// app holds the wired components of a running syncd.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	store    *store.Store
	manager  connection.Manager
	subs     subscription.Registry
	gate     *session.Gate
	server   *server.Server
	watcher  *store.Watcher
	leases   []*subscription.Lease
	watchEnd chan struct{}

	serverErr chan error
}

// newApp wires the components without starting any of them.
func newApp(cfg *config.Config, logger *slog.Logger, opts ...connection.Option) *app {
	reg := metrics.Init(logger)

	st := store.New(storeConfig(cfg.Store), logger)
	rt := router.NewRouter(router.DefaultRouterConfig(), st, logger)
	mgr := connection.NewManager(managerConfig(cfg.Stream), rt, logger, opts...)

	subs := subscription.NewRegistry(mgr, st, logger)
	mgr.OnOpen(subs.Resubscribe)

	backend := session.NewClient(cfg.Backend.BaseURL,
		session.WithLogger(logger),
		session.WithTimeout(cfg.Backend.Timeout),
		session.WithRetries(cfg.Backend.MaxRetries, time.Second),
		session.WithPaths(cfg.Backend.AuthStatusPath, cfg.Backend.LogoutPath),
		session.WithHeader("User-Agent", version.UserAgent()),
	)
	gate := session.NewGate(session.Config{
		PollInterval:      cfg.Backend.AuthPollInterval,
		Timeout:           cfg.Backend.Timeout,
		ClearOnDisconnect: cfg.Store.ClearOnDisconnect,
	}, backend, mgr, st, logger)

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Store:         st,
		Conn:          mgr,
		Controls:      gate,
		Subscriptions: subs,
		Registry:      reg,
		Logger:        logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		store:     st,
		manager:   mgr,
		subs:      subs,
		gate:      gate,
		server:    srv,
		serverErr: make(chan error, 1),
	}
}

// start subscribes the configured instruments, then starts the gate
// and the HTTP server. Subscriptions are sent by the open hook.
func (a *app) start(ctx context.Context) error {
	for _, id := range a.cfg.Subscriptions.Instruments {
		lease, err := a.subs.Acquire(id)
		if err != nil {
			return err
		}
		a.leases = append(a.leases, lease)
	}

	a.watcher = a.store.Watch()
	a.watchEnd = make(chan struct{})
	go a.trackVersion(ctx)

	if err := a.gate.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := a.server.Start(); err != nil {
			a.serverErr <- err
		}
	}()
	return nil
}

// stop shuts components down in reverse order.
func (a *app) stop(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http server shutdown", "error", err)
	}
	if err := a.gate.Stop(ctx); err != nil {
		a.logger.Warn("session gate stop", "error", err)
	}
	for _, l := range a.leases {
		l.Release()
	}
	a.manager.Disconnect()

	if a.watcher != nil {
		a.watcher.Close()
		<-a.watchEnd
	}

	stats := a.manager.Stats()
	a.logger.Info("connection stats",
		"opens", stats.Opens,
		"closes", stats.Closes,
		"reconnects_scheduled", stats.ReconnectsScheduled,
		"messages", stats.MessagesDispatched,
	)
}

// trackVersion mirrors the store version into metrics.
func (a *app) trackVersion(ctx context.Context) {
	defer close(a.watchEnd)
	for {
		c, ok := a.watcher.Next(ctx)
		if !ok {
			return
		}
		metrics.StoreVersion.Set(float64(c.Version))
	}
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func storeConfig(c config.StoreConfig) store.Config {
	return store.Config{
		HistorySize:     c.HistorySize,
		HistoryMinDelta: decimal.NewFromFloat(c.HistoryMinDelta),
		CoreModelSuffix: c.CoreModelSuffix,
		ErrorHistory:    c.ErrorHistory,
	}
}

func managerConfig(c config.StreamConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		Client: connection.ClientConfig{
			URL:          c.URL,
			OpenTimeout:  c.OpenTimeout,
			PingInterval: c.PingInterval,
			PingTimeout:  c.PingTimeout,
			WriteTimeout: c.WriteTimeout,
			BufferSize:   c.BufferSize,
		},
		OpenTimeout:          c.OpenTimeout,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBaseDelay:   c.ReconnectBaseDelay,
		ReconnectMaxDelay:    c.ReconnectMaxDelay,
		Handshake:            c.HandshakeEnabled(),
		ClientName:           version.UserAgent(),
	}
}
