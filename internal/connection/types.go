package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("open timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// State is a snapshot of the manager's lifecycle.
type State struct {
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Attempts     int       `json:"attempts"`     // Reconnects scheduled since the last successful open
	Reconnecting bool      `json:"reconnecting"` // A reconnect timer is pending
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a message from Connection Manager to Message Router.
type RawMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ConnID     uint64    // Generation of the connection it came from
	ReceivedAt time.Time // Local timestamp when WS Client received message
}

// Handler consumes inbound frames. Calls are serialized across
// connections and arrive in receipt order. No call for a connection starts
// after the Disconnect or close that retired it has returned.
// HandleMessage must not call Connect or Disconnect.
type Handler interface {
	HandleMessage(msg RawMessage)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg RawMessage)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg RawMessage) { f(msg) }

// CloseInfo describes why a connection ended.
type CloseInfo struct {
	Code   int    // WebSocket close code, 1006 when the socket dropped
	Reason string // Close reason or transport error text
	Err    error  // Underlying read error, if any
}

// Hello is the optional handshake frame sent after open.
type Hello struct {
	Type      string `json:"type"` // "hello"
	SessionID string `json:"session_id"`
	Client    string `json:"client"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://localhost:5000/ws)
	Header       http.Header   // Extra handshake headers
	OpenTimeout  time.Duration // Handshake timeout
	PingInterval time.Duration // How often we ping the server
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		OpenTimeout:  10 * time.Second,
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client               ClientConfig
	OpenTimeout          time.Duration // Abort an attempt that has not opened by then
	MaxReconnectAttempts int           // Reconnects scheduled; error on the close after the last one
	ReconnectBaseDelay   time.Duration // Delay before the first reconnect
	ReconnectMaxDelay    time.Duration // Backoff cap
	Handshake            bool          // Send a Hello frame after open
	ClientName           string        // Hello.Client value
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:               DefaultClientConfig(),
		OpenTimeout:          10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		Handshake:            true,
		ClientName:           "portfolio-stream",
	}
}
