package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a single WebSocket connection to the broadcasting backend.
type Transport interface {
	// Connect dials the endpoint and starts the read and keepalive loops.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. Safe to call more than once.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages returns a channel of raw inbound frames, each stamped on receipt.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel that yields at most one terminal error.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// Dialer builds a Transport for one connection attempt.
type Dialer func(cfg ClientConfig, logger *slog.Logger) Transport

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu           sync.RWMutex
	connected    bool
	closed       bool
	lastActivity time.Time
	lastSent     time.Time
}

// NewTransport creates a WebSocket transport. It does not dial until Connect.
func NewTransport(cfg ClientConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}

	return &wsTransport{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the endpoint.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	header := http.Header{}
	for k, vs := range t.cfg.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		// Closed while dialing.
		t.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	t.conn = conn
	t.connected = true
	t.lastActivity = time.Now()
	t.lastSent = time.Now()
	t.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop()
	go t.heartbeatLoop()

	t.logger.Debug("websocket connected", "url", t.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	return conn.Close()
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	t.mu.Lock()
	t.lastSent = time.Now()
	t.mu.Unlock()
	return nil
}

// Messages returns the messages channel.
func (t *wsTransport) Messages() <-chan TimestampedMessage {
	return t.messages
}

// Errors returns the errors channel.
func (t *wsTransport) Errors() <-chan error {
	return t.errors
}

// IsConnected returns the current connection state.
func (t *wsTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// fail reports a terminal error unless the transport was closed by its owner.
func (t *wsTransport) fail(err error) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.errors <- err:
	default:
	}
}

// readLoop forwards inbound frames in order. It blocks rather than drops
// when the consumer falls behind.
func (t *wsTransport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			t.fail(err)
			return
		}

		t.touch()

		select {
		case t.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			return
		}
	}
}

// heartbeatLoop keeps an idle connection alive and detects stale ones.
func (t *wsTransport) heartbeatLoop() {
	interval := t.cfg.PingInterval
	if interval <= 0 {
		interval = DefaultClientConfig().PingInterval
	}
	check := interval / 4
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}

	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			conn := t.conn
			lastActivity := t.lastActivity
			lastSent := t.lastSent
			t.mu.RUnlock()

			if t.cfg.PingTimeout > 0 && time.Since(lastActivity) > t.cfg.PingTimeout {
				t.logger.Warn("no inbound activity, connection stale",
					"last_activity", lastActivity,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				return
			}

			if time.Since(lastActivity) < interval || time.Since(lastSent) < interval {
				continue
			}

			if t.cfg.PingPayload != nil {
				if err := t.Send(t.cfg.PingPayload); err != nil {
					t.logger.Debug("failed to send ping", "error", err)
				}
				continue
			}

			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(t.cfg.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			} else {
				t.mu.Lock()
				t.lastSent = time.Now()
				t.mu.Unlock()
			}
		}
	}
}
