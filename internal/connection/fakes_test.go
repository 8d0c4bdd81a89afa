package connection

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the durations of active timers, sorted.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeClient is a scripted Client.
type fakeClient struct {
	connectErr error
	block      chan struct{} // Connect waits on it when non-nil

	messages chan TimestampedMessage
	errors   chan error
	closedCh chan CloseInfo
	once     sync.Once

	mu        sync.Mutex
	connected bool
	closed    bool
	sent      [][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 100),
		errors:   make(chan error, 10),
		closedCh: make(chan CloseInfo, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	f.finish(CloseInfo{Code: 1000, Reason: "closed by client"})
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }
func (f *fakeClient) Closed() <-chan CloseInfo            { return f.closedCh }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// push queues an inbound frame.
func (f *fakeClient) push(data string) {
	f.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

// drop simulates the server going away.
func (f *fakeClient) drop(code int, reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.finish(CloseInfo{Code: code, Reason: reason})
}

func (f *fakeClient) finish(info CloseInfo) {
	f.once.Do(func() {
		close(f.messages)
		f.closedCh <- info
	})
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

// fakeFactory records every client the manager creates.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	script  func(n int, c *fakeClient) // Adjusts client n (0-based) before use
}

func (ff *fakeFactory) New(cfg ClientConfig, logger *slog.Logger) Client {
	c := newFakeClient()
	ff.mu.Lock()
	n := len(ff.clients)
	ff.clients = append(ff.clients, c)
	ff.mu.Unlock()
	if ff.script != nil {
		ff.script(n, c)
	}
	return c
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

func (ff *fakeFactory) client(n int) *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[n]
}

var errDialRefused = errors.New("connection refused")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, m Manager, want Status) State {
	t.Helper()
	var st State
	waitFor(t, "status "+string(want), func() bool {
		st = m.State()
		return st.Status == want
	})
	return st
}

func waitPending(t *testing.T, clk *fakeClock, want ...time.Duration) {
	t.Helper()
	waitFor(t, "pending timers", func() bool {
		got := clk.Pending()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	})
}
