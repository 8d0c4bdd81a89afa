package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/portfolio-stream/internal/metrics"
)

// Manager owns the stream connection lifecycle.
type Manager interface {
	// Connect starts a connection attempt. No-op while connecting or
	// connected. Resets the reconnect budget.
	Connect()

	// Disconnect closes the connection and cancels any pending reconnect.
	Disconnect()

	// Send JSON-encodes v and writes it as one frame.
	Send(v any) error

	// State returns the current lifecycle snapshot.
	State() State

	// OnOpen registers fn to run after every successful open.
	OnOpen(fn func())

	// OnStatus registers fn to run after every state change.
	OnStatus(fn func(State))

	// Stats returns lifetime counters.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	ClientsCreated      int64
	Opens               int64
	Closes              int64
	ReconnectsScheduled int64
	MessagesDispatched  int64
	StaleEventsDropped  int64
}

// Option configures a Manager.
type Option func(*manager)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(m *manager) { m.clock = c }
}

// WithClientFactory replaces NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(m *manager) { m.newClient = f }
}

// manager implements the Manager interface.
//
// Every attempt, close and disconnect bumps gen. Callbacks from dials,
// pumps and timers carry the gen they were started under and are ignored
// once it is stale.
//
// dispatchMu is held while a frame is checked against gen and handed to
// the handler, and while gen is bumped. Once a bump returns, no frame from
// an older gen is being or will be dispatched. Lock order: dispatchMu, mu.
type manager struct {
	cfg       ManagerConfig
	handler   Handler
	logger    *slog.Logger
	clock     Clock
	newClient ClientFactory
	sessionID string

	dispatchMu sync.Mutex

	mu             sync.Mutex
	gen            uint64
	status         Status
	message        string
	attempts       int
	connectedAt    time.Time
	client         Client
	cancelDial     context.CancelFunc
	openTimer      Timer
	reconnectTimer Timer
	stats          ManagerStats

	hookMu   sync.RWMutex
	onOpen   []func()
	onStatus []func(State)
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, handler Handler, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = HandlerFunc(func(RawMessage) {})
	}

	m := &manager{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		clock:     SystemClock(),
		newClient: NewClient,
		sessionID: uuid.NewString(),
		status:    StatusDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a connection attempt.
func (m *manager) Connect() {
	m.lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		m.unlock()
		return
	}
	m.stopReconnectLocked()
	m.attempts = 0
	st, dial := m.startLocked()
	m.unlock()

	m.logger.Info("connecting", "url", m.cfg.Client.URL)
	m.emitStatus(st)
	go dial()
}

// Disconnect closes the connection without reconnecting.
func (m *manager) Disconnect() {
	m.lock()
	if m.status == StatusDisconnected && m.client == nil && m.reconnectTimer == nil {
		m.unlock()
		return
	}
	m.gen++
	m.stopReconnectLocked()
	c := m.abortAttemptLocked()
	m.attempts = 0
	m.status = StatusDisconnected
	m.message = ""
	m.connectedAt = time.Time{}
	st := m.stateLocked()
	m.unlock()

	if c != nil {
		if err := c.Close(); err != nil {
			m.logger.Debug("close failed", "error", err)
		}
	}
	m.logger.Info("disconnected")
	m.emitStatus(st)
}

// Send JSON-encodes v and writes it as one frame.
func (m *manager) Send(v any) error {
	m.mu.Lock()
	c := m.client
	ok := m.status == StatusConnected && c != nil
	m.mu.Unlock()

	if !ok {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := c.Send(data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// State returns the current lifecycle snapshot.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// OnOpen registers an open hook.
func (m *manager) OnOpen(fn func()) {
	m.hookMu.Lock()
	m.onOpen = append(m.onOpen, fn)
	m.hookMu.Unlock()
}

// OnStatus registers a status hook.
func (m *manager) OnStatus(fn func(State)) {
	m.hookMu.Lock()
	m.onStatus = append(m.onStatus, fn)
	m.hookMu.Unlock()
}

// Stats returns lifetime counters.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// startLocked creates a client for a new attempt. Caller holds lock(). The
// returned dial func must be run after it is released.
func (m *manager) startLocked() (State, func()) {
	m.gen++
	gen := m.gen

	m.status = StatusConnecting
	m.message = ""
	m.connectedAt = time.Time{}

	c := m.newClient(m.cfg.Client, m.logger.With("conn_id", gen))
	m.client = c
	m.stats.ClientsCreated++

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	if m.cfg.OpenTimeout > 0 {
		m.openTimer = m.clock.AfterFunc(m.cfg.OpenTimeout, func() { m.handleOpenTimeout(gen) })
	}

	return m.stateLocked(), func() { m.dial(ctx, gen, c) }
}

func (m *manager) dial(ctx context.Context, gen uint64, c Client) {
	err := c.Connect(ctx)

	m.lock()
	if gen != m.gen {
		m.stats.StaleEventsDropped++
		m.unlock()
		if err == nil {
			_ = c.Close()
		}
		return
	}

	if err != nil {
		m.abortAttemptLocked()
		st := m.closedLocked(fmt.Sprintf("dial: %v", err))
		m.unlock()

		_ = c.Close()
		m.logger.Warn("connection attempt failed", "error", err, "attempts", st.Attempts)
		m.emitStatus(st)
		return
	}

	m.stopOpenTimerLocked()
	m.cancelDial()
	m.cancelDial = nil
	m.status = StatusConnected
	m.message = ""
	m.attempts = 0
	m.connectedAt = m.clock.Now()
	m.stats.Opens++
	st := m.stateLocked()
	m.unlock()

	go m.pump(gen, c)

	m.logger.Info("connected", "url", m.cfg.Client.URL)
	if m.cfg.Handshake {
		m.sendHello(c)
	}
	m.runOpenHooks()
	m.emitStatus(st)
}

func (m *manager) sendHello(c Client) {
	data, err := json.Marshal(Hello{
		Type:      "hello",
		SessionID: m.sessionID,
		Client:    m.cfg.ClientName,
	})
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		m.logger.Warn("handshake send failed", "error", err)
	}
}

// pump dispatches c's frames in order, then handles its close.
func (m *manager) pump(gen uint64, c Client) {
	msgs := c.Messages()
	errs := c.Errors()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				m.handleClose(gen, <-c.Closed())
				return
			}
			m.dispatch(gen, msg)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.handleTransportError(gen, err)
		}
	}
}

// dispatch hands msg to the handler unless gen is stale.
func (m *manager) dispatch(gen uint64, msg TimestampedMessage) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	ok := gen == m.gen
	if !ok {
		m.stats.StaleEventsDropped++
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.handler.HandleMessage(RawMessage{
		Data:       msg.Data,
		ConnID:     gen,
		ReceivedAt: msg.ReceivedAt,
	})

	m.mu.Lock()
	m.stats.MessagesDispatched++
	m.mu.Unlock()
}

// lock takes dispatchMu and mu. Use it around any gen bump.
func (m *manager) lock() {
	m.dispatchMu.Lock()
	m.mu.Lock()
}

func (m *manager) unlock() {
	m.mu.Unlock()
	m.dispatchMu.Unlock()
}

func (m *manager) handleTransportError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.message = err.Error()
	st := m.stateLocked()
	m.mu.Unlock()

	m.logger.Warn("transport error", "error", err)
	m.emitStatus(st)
}

func (m *manager) handleClose(gen uint64, info CloseInfo) {
	m.lock()
	if gen != m.gen {
		m.stats.StaleEventsDropped++
		m.unlock()
		return
	}
	m.abortAttemptLocked()
	cause := fmt.Sprintf("closed (%d)", info.Code)
	if info.Reason != "" {
		cause = fmt.Sprintf("closed (%d): %s", info.Code, info.Reason)
	}
	st := m.closedLocked(cause)
	m.unlock()

	m.logger.Warn("connection closed", "code", info.Code, "reason", info.Reason, "status", st.Status)
	m.emitStatus(st)
}

func (m *manager) handleOpenTimeout(gen uint64) {
	m.lock()
	if gen != m.gen || m.status != StatusConnecting {
		m.unlock()
		return
	}
	m.openTimer = nil
	c := m.abortAttemptLocked()
	st := m.closedLocked(fmt.Sprintf("%v after %s", ErrTimeout, m.cfg.OpenTimeout))
	m.unlock()

	if c != nil {
		_ = c.Close()
	}
	m.logger.Warn("connection attempt timed out", "timeout", m.cfg.OpenTimeout)
	m.emitStatus(st)
}

func (m *manager) handleReconnect(gen uint64) {
	m.lock()
	if gen != m.gen || m.status != StatusDisconnected {
		m.unlock()
		return
	}
	m.reconnectTimer = nil
	st, dial := m.startLocked()
	m.unlock()

	m.logger.Info("reconnecting", "attempt", st.Attempts)
	m.emitStatus(st)
	go dial()
}

// closedLocked applies the close transition: schedule a reconnect while
// budget remains, otherwise settle in error. Caller holds lock().
func (m *manager) closedLocked(cause string) State {
	m.gen++
	m.stats.Closes++
	m.connectedAt = time.Time{}

	if m.attempts < m.cfg.MaxReconnectAttempts {
		delay := Backoff(m.attempts, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
		m.attempts++
		m.status = StatusDisconnected
		m.message = fmt.Sprintf("%s; reconnecting in %s (attempt %d/%d)",
			cause, delay, m.attempts, m.cfg.MaxReconnectAttempts)

		gen := m.gen
		m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.handleReconnect(gen) })
		m.stats.ReconnectsScheduled++
		metrics.ReconnectsScheduledTotal.Inc()
	} else {
		m.status = StatusError
		m.message = fmt.Sprintf("reconnect attempts exhausted (%d): %s", m.cfg.MaxReconnectAttempts, cause)
	}
	return m.stateLocked()
}

// abortAttemptLocked cancels an in-flight dial and open timer, and
// detaches the current client. Returns the detached client.
func (m *manager) abortAttemptLocked() Client {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.stopOpenTimerLocked()
	c := m.client
	m.client = nil
	return c
}

func (m *manager) stopOpenTimerLocked() {
	if m.openTimer != nil {
		m.openTimer.Stop()
		m.openTimer = nil
	}
}

func (m *manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *manager) stateLocked() State {
	return State{
		Status:       m.status,
		Message:      m.message,
		Attempts:     m.attempts,
		Reconnecting: m.reconnectTimer != nil,
		ConnectedAt:  m.connectedAt,
	}
}

func (m *manager) runOpenHooks() {
	m.hookMu.RLock()
	hooks := append([]func(){}, m.onOpen...)
	m.hookMu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (m *manager) emitStatus(st State) {
	metrics.SetConnectionStatus(st.Status.String())

	m.hookMu.RLock()
	hooks := append([]func(State){}, m.onStatus...)
	m.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(st)
	}
}
