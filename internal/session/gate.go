package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/metrics"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("gate not started")

// AuthSource reports and ends the backend session.
type AuthSource interface {
	AuthStatus(ctx context.Context) (AuthStatus, error)
	Logout(ctx context.Context) error
}

// Connector is the part of the connection manager the gate drives.
type Connector interface {
	Connect()
	Disconnect()
	State() connection.State
}

// Clearer wipes cached data.
type Clearer interface {
	ClearAll()
}

// Config holds gate configuration.
type Config struct {
	PollInterval      time.Duration // Auth status poll interval (default: 15s)
	Timeout           time.Duration // Per-check timeout (default: 10s)
	ClearOnDisconnect bool          // Manual Disconnect also clears the store
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		Timeout:      10 * time.Second,
	}
}

// GateStatus is a snapshot of the last auth check.
type GateStatus struct {
	Authenticated *bool     `json:"authenticated"` // nil before the first successful check
	LastCheck     time.Time `json:"last_check,omitempty"`
	LastError     string    `json:"last_error,omitempty"`

	ManualDisconnect bool `json:"manual_disconnect,omitempty"`
}

// Gate connects the stream only while the backend session is authenticated.
type Gate struct {
	cfg    Config
	auth   AuthSource
	conn   Connector
	store  Clearer
	logger *slog.Logger

	checkMu sync.Mutex // Serializes Check, Logout and Disconnect

	mu            sync.Mutex
	authenticated *bool
	lastCheck     time.Time
	lastErr       string
	manualDown    bool // Set by Disconnect, cleared by Reconnect or a fresh login

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewGate creates a new Gate.
func NewGate(cfg Config, auth AuthSource, conn Connector, store Clearer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Gate{
		cfg:    cfg,
		auth:   auth,
		conn:   conn,
		store:  store,
		logger: logger,
	}
}

// Check polls auth status once and drives the connection from it. A
// failed status call leaves the connection alone.
func (g *Gate) Check(ctx context.Context) (AuthStatus, error) {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()

	st, err := g.auth.AuthStatus(ctx)
	now := time.Now()
	if err != nil {
		metrics.AuthChecksTotal.WithLabelValues("error").Inc()
		g.mu.Lock()
		g.lastCheck, g.lastErr = now, err.Error()
		g.mu.Unlock()
		g.logger.Warn("auth status check failed", "error", err)
		return AuthStatus{}, fmt.Errorf("auth status: %w", err)
	}

	g.mu.Lock()
	prev := g.authenticated
	authed := st.Authenticated
	g.authenticated = &authed
	g.lastCheck, g.lastErr = now, ""
	if authed && prev != nil && !*prev {
		g.manualDown = false
	}
	manualDown := g.manualDown
	g.mu.Unlock()

	state := g.conn.State()
	if st.Authenticated {
		metrics.AuthChecksTotal.WithLabelValues("authenticated").Inc()
		// The error state and a manual disconnect are only left through Reconnect.
		if manualDown {
			return st, nil
		}
		if state.Status == connection.StatusDisconnected && !state.Reconnecting {
			g.logger.Info("authenticated, connecting stream")
			g.conn.Connect()
		}
		return st, nil
	}

	metrics.AuthChecksTotal.WithLabelValues("unauthenticated").Inc()
	live := state.Status != connection.StatusDisconnected || state.Reconnecting
	if prev == nil || *prev || live {
		g.logger.Warn("not authenticated, tearing down stream", "message", st.Message)
		g.conn.Disconnect()
		g.store.ClearAll()
	}
	return st, nil
}

// Logout ends the backend session first so the server can send its
// disconnect notice, then closes the stream and clears cached data. The
// local teardown happens even if the logout call fails.
func (g *Gate) Logout(ctx context.Context) error {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()

	err := g.auth.Logout(ctx)
	if err != nil {
		g.logger.Warn("logout request failed", "error", err)
	}

	g.conn.Disconnect()
	g.store.ClearAll()

	authed := false
	g.mu.Lock()
	g.authenticated = &authed
	g.mu.Unlock()

	g.logger.Info("logged out")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Disconnect closes the stream at the user's request. Polling will not
// reopen it until Reconnect or a new login.
func (g *Gate) Disconnect() {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()

	g.mu.Lock()
	g.manualDown = true
	g.mu.Unlock()

	g.conn.Disconnect()
	if g.cfg.ClearOnDisconnect {
		g.store.ClearAll()
	}
}

// Reconnect starts a fresh connection attempt, including out of the
// error state.
func (g *Gate) Reconnect() {
	g.mu.Lock()
	g.manualDown = false
	g.mu.Unlock()

	g.conn.Connect()
}

// Status returns the last check result.
func (g *Gate) Status() GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := GateStatus{LastCheck: g.lastCheck, LastError: g.lastErr, ManualDisconnect: g.manualDown}
	if g.authenticated != nil {
		v := *g.authenticated
		st.Authenticated = &v
	}
	return st
}

// Start runs one check now and then on every poll interval.
func (g *Gate) Start(ctx context.Context) error {
	g.ctx, g.stop = context.WithCancel(ctx)

	g.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	schedule := "@every " + g.cfg.PollInterval.String()
	if _, err := g.cron.AddFunc(schedule, g.runCheck); err != nil {
		g.stop()
		return fmt.Errorf("schedule auth check %q: %w", schedule, err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runCheck()
	}()
	g.cron.Start()

	g.logger.Info("session gate started", "interval", g.cfg.PollInterval)
	return nil
}

// Stop halts polling and waits for a running check to finish.
func (g *Gate) Stop(ctx context.Context) error {
	if g.cron == nil {
		return ErrNotStarted
	}
	g.stop()
	cronDone := g.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("session gate stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) runCheck() {
	if g.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.Timeout)
	defer cancel()
	_, _ = g.Check(ctx)
}
