package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no activity)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrMalformedFrame  = errors.New("malformed frame")
)

// Status is the state of the shared connection.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Listener receives the connection status and, for StatusError, a human-readable message.
type Listener func(status Status, message string)

// Event is a single channel event as delivered to handlers.
type Event struct {
	Channel    string          // Full channel name, e.g. "private-user.42"
	Name       string          // Event name, e.g. "withdrawal-request.updated"
	Data       json.RawMessage // Event payload (decoded from the protocol's string wrapping)
	ReceivedAt time.Time       // Local timestamp when the frame was read
}

// EventHandler handles one event. Handlers for a channel run sequentially on
// that channel's delivery goroutine.
type EventHandler func(Event)

// Handlers maps event names to handlers for one channel.
type Handlers map[string]EventHandler

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket transport.
type ClientConfig struct {
	URL              string        // Full endpoint URL including app key and protocol query
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Idle time before sending a keepalive
	PingTimeout      time.Duration // Max time without inbound activity before the connection is stale
	PingPayload      []byte        // Keepalive text frame; nil sends WebSocket ping control frames
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      120 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	WSURL            string        // Broadcasting host, e.g. wss://ws.example.com
	AppKey           string        // Broadcasting application key
	HandshakeTimeout time.Duration // WebSocket handshake timeout
	PingInterval     time.Duration // Idle time before the client pings
	PingTimeout      time.Duration // Max silence before the connection is considered dropped
	WriteTimeout     time.Duration // Write deadline for frames
	AuthTimeout      time.Duration // Timeout for a private-channel authorization call
	BufferSize       int           // Transport inbound buffer
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      120 * time.Second,
		WriteTimeout:     5 * time.Second,
		AuthTimeout:      10 * time.Second,
		BufferSize:       256,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status         Status
	SocketID       string
	Bindings       int // Channels with registered handlers
	Subscribed     int // Channels acknowledged by the server on the live connection
	EventsReceived int64
	EventsPending  int   // Events queued for handlers across all bindings
	EventsDropped  int64 // Queued events discarded when their binding was removed
	Connects       int64 // Transports dialed since construction
	Listeners      int
}
