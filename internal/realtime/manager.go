package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/fundsync/internal/version"
)

// Authorizer signs private-channel subscriptions for a socket.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the WebSocket transport factory.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.dial = d
		}
	}
}

// connection is one dial attempt and, once established, the live socket.
type connection struct {
	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	socketID string // guarded by Manager.mu; empty until established
}

func (c *connection) shutdown() {
	c.cancel()
	c.transport.Close()
}

type listenerEntry struct {
	id    uint64
	fn    Listener
	prime *priming // guarded by Manager.mu
}

// priming holds changes raised while a new listener is still receiving its
// registration status. They are handed to the registering goroutine so the
// listener sees them after that status, never before.
type priming struct {
	done    bool
	backlog []notification
}

// notification is one queued status delivery to a fixed set of listeners.
type notification struct {
	status  Status
	message string
	targets []listenerEntry
}

// Manager owns the single shared event-stream connection.
//
// Status moves disconnected -> connecting -> connected, and to error on any
// failure. Transitions are driven only by the transport and protocol frames;
// Connect never reports connected on its own.
type Manager struct {
	cfg    ManagerConfig
	auth   Authorizer
	dial   Dialer
	logger *slog.Logger

	// wireMu orders subscribe and unsubscribe frames. Taken before mu.
	wireMu sync.Mutex

	mu       sync.Mutex
	status   Status
	message  string
	lastErr  string
	conn     *connection
	bindings map[string]*binding

	listeners    []listenerEntry
	nextListener uint64
	pending      []notification
	draining     bool

	connects       atomic.Int64
	eventsReceived atomic.Int64
	eventsDropped  atomic.Int64
}

// NewManager creates a Connection Manager. auth may be nil for backends that
// accept unsigned subscriptions.
func NewManager(cfg ManagerConfig, auth Authorizer, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	m := &Manager{
		cfg:      cfg,
		auth:     auth,
		dial:     NewTransport,
		logger:   logger.With("component", "realtime"),
		status:   StatusDisconnected,
		bindings: make(map[string]*binding),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a connection attempt and returns immediately. It is a no-op
// while connecting or connected. From disconnected or error it discards any
// leftover transport and dials a new one; registered bindings are subscribed
// once the server confirms the connection.
//
// ctx bounds the connection's lifetime: cancelling it closes the socket and
// moves the status to disconnected.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		status := m.status
		m.mu.Unlock()
		m.logger.Debug("connect ignored", "status", status)
		return
	}

	old := m.detachLocked()
	cctx, cancel := context.WithCancel(ctx)
	c := &connection{
		transport: m.dial(m.clientConfig(), m.logger),
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.conn = c
	m.connects.Add(1)
	m.setStatusLocked(StatusConnecting, "")
	m.mu.Unlock()

	if old != nil {
		old.shutdown()
	}
	m.flush()

	go m.run(c)
}

// Disconnect closes the connection, clears every channel binding and moves the
// status to disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.detachLocked()
	bindings := m.bindings
	m.bindings = make(map[string]*binding)
	m.setStatusLocked(StatusDisconnected, "")
	m.mu.Unlock()

	if c != nil {
		c.shutdown()
	}
	for _, b := range bindings {
		m.eventsDropped.Add(int64(b.close()))
	}
	m.flush()

	m.logger.Info("realtime disconnected", "bindings_cleared", len(bindings))
}

// SubscribeToPrivateChannel binds handlers to a private channel, adding the
// private- prefix when missing. Binding a channel that is already bound
// replaces its handlers. The binding survives reconnects until removed.
//
// The returned func removes the binding, unless it has been re-bound since.
func (m *Manager) SubscribeToPrivateChannel(name string, handlers Handlers) func() {
	channel := PrivateChannel(name)

	m.mu.Lock()
	b, exists := m.bindings[channel]
	if exists {
		b.setHandlers(handlers)
	} else {
		b = newBinding(channel, handlers, m.logger)
		m.bindings[channel] = b
	}
	b.version++
	ver := b.version

	c := m.conn
	var socketID string
	if c != nil && c.socketID != "" && b.state == subIdle {
		b.state = subPending
		socketID = c.socketID
	}
	m.mu.Unlock()

	if socketID != "" {
		go m.subscribe(c, socketID, b)
	}

	m.logger.Debug("channel bound",
		"channel", channel,
		"events", len(handlers),
		"replaced", exists,
	)

	var once sync.Once
	return func() {
		once.Do(func() { m.release(channel, b, ver) })
	}
}

// UnsubscribeFromChannel removes the binding for a channel, if any.
func (m *Manager) UnsubscribeFromChannel(name string) {
	channel := PrivateChannel(name)

	m.unbind(channel, func(*binding) bool { return true })
}

func (m *Manager) release(channel string, b *binding, ver uint64) {
	m.unbind(channel, func(cur *binding) bool { return cur == b && b.version == ver })
}

// unbind removes the channel's binding when match accepts it. The unsubscribe
// frame is sent under wireMu, so it can never overtake a subscribe frame that
// is being written for the same binding.
func (m *Manager) unbind(channel string, match func(*binding) bool) {
	m.wireMu.Lock()
	defer m.wireMu.Unlock()

	m.mu.Lock()
	b, ok := m.bindings[channel]
	if !ok || !match(b) {
		m.mu.Unlock()
		return
	}
	delete(m.bindings, channel)
	c := m.conn
	m.mu.Unlock()

	m.eventsDropped.Add(int64(b.close()))
	if c != nil && b.sentOn == c {
		if err := c.transport.Send(encodeUnsubscribe(channel)); err != nil {
			m.logger.Debug("unsubscribe not sent", "channel", channel, "error", err)
		}
	}
	m.logger.Debug("channel unbound", "channel", channel)
}

// OnConnectionChange registers a listener. The listener is called with the
// current status before OnConnectionChange returns, then once per subsequent
// change, in order.
// Listeners may call back into the Manager. The returned func unregisters it.
func (m *Manager) OnConnectionChange(l Listener) func() {
	if l == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextListener++
	e := listenerEntry{id: m.nextListener, fn: l, prime: &priming{}}
	m.listeners = append(m.listeners, e)
	n := notification{status: m.status, message: m.message}
	m.mu.Unlock()

	// Deliver on this goroutine even when another one is draining.
	m.notify(e, n)
	for {
		m.mu.Lock()
		if len(e.prime.backlog) == 0 {
			e.prime.done = true
			m.mu.Unlock()
			break
		}
		next := e.prime.backlog[0]
		e.prime.backlog = e.prime.backlog[1:]
		live := m.listeningLocked(e.id)
		m.mu.Unlock()

		if live {
			m.notify(e, next)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.removeListener(e.id) })
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastError returns the most recent error message, or "" if none occurred.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ManagerStats{
		Status:         m.status,
		Bindings:       len(m.bindings),
		Listeners:      len(m.listeners),
		EventsReceived: m.eventsReceived.Load(),
		EventsDropped:  m.eventsDropped.Load(),
		Connects:       m.connects.Load(),
	}
	if m.conn != nil {
		stats.SocketID = m.conn.socketID
	}
	for _, b := range m.bindings {
		if b.state == subActive {
			stats.Subscribed++
		}
		stats.EventsPending += b.box.pending()
	}
	return stats
}

func (m *Manager) clientConfig() ClientConfig {
	return ClientConfig{
		URL:              endpointURL(m.cfg.WSURL, m.cfg.AppKey, version.Version),
		Header:           http.Header{"User-Agent": {version.UserAgent()}},
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		PingInterval:     m.cfg.PingInterval,
		PingTimeout:      m.cfg.PingTimeout,
		PingPayload:      encodePing(),
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
}

// detachLocked drops the current connection and resets subscription state.
func (m *Manager) detachLocked() *connection {
	c := m.conn
	m.conn = nil
	for _, b := range m.bindings {
		b.state = subIdle
	}
	return c
}

// setStatusLocked records a status change and queues one notification for
// every registered listener. Callers must flush after unlocking.
func (m *Manager) setStatusLocked(s Status, message string) {
	if m.status == s && m.message == message {
		return
	}
	m.status = s
	m.message = message
	if s == StatusError {
		m.lastErr = message
	}

	targets := make([]listenerEntry, len(m.listeners))
	copy(targets, m.listeners)
	m.pending = append(m.pending, notification{status: s, message: message, targets: targets})
}

// flush delivers queued notifications in order. Only one goroutine drains at
// a time; a reentrant call from inside a listener returns at once and its
// notifications are delivered by the outer drain after the current one.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true

	for len(m.pending) > 0 {
		n := m.pending[0]
		m.pending[0] = notification{}
		m.pending = m.pending[1:]
		m.mu.Unlock()

		for _, e := range n.targets {
			if m.claim(e, n) {
				m.notify(e, n)
			}
		}

		m.mu.Lock()
	}
	m.pending = nil
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) notify(e listenerEntry, n notification) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("status listener panicked", "status", n.status, "panic", r)
		}
	}()
	e.fn(n.status, n.message)
}

// claim reports whether the drain should deliver n to e now. Notifications
// for a listener that is still priming are parked in its backlog.
func (m *Manager) claim(e listenerEntry, n notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listeningLocked(e.id) {
		return false
	}
	if !e.prime.done {
		e.prime.backlog = append(e.prime.backlog, notification{status: n.status, message: n.message})
		return false
	}
	return true
}

func (m *Manager) listeningLocked(id uint64) bool {
	for _, e := range m.listeners {
		if e.id == id {
			return true
		}
	}
	return false
}

func (m *Manager) removeListener(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.listeners {
		if e.id == id {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// run owns one connection attempt until it fails or is replaced.
func (m *Manager) run(c *connection) {
	defer close(c.done)

	start := time.Now()
	if err := c.transport.Connect(c.ctx); err != nil {
		if c.ctx.Err() != nil {
			m.stopped(c)
			return
		}
		m.fail(c, fmt.Errorf("dial: %w", err))
		return
	}
	m.logger.Debug("transport open", "elapsed", time.Since(start))

	msgs, errs := c.transport.Messages(), c.transport.Errors()
	for {
		select {
		case <-c.ctx.Done():
			m.stopped(c)
			return
		case err := <-errs:
			m.fail(c, err)
			return
		case msg := <-msgs:
			m.handleFrame(c, msg)
		}
	}
}

// fail moves to error if c is still the live connection.
func (m *Manager) fail(c *connection, err error) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	m.setStatusLocked(StatusError, err.Error())
	m.mu.Unlock()

	c.shutdown()
	m.logger.Warn("realtime connection failed", "error", err)
	m.flush()
}

// stopped handles cancellation of the connection context.
func (m *Manager) stopped(c *connection) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	m.setStatusLocked(StatusDisconnected, "")
	m.mu.Unlock()

	c.shutdown()
	m.logger.Info("realtime connection closed", "reason", context.Cause(c.ctx))
	m.flush()
}

func (m *Manager) handleFrame(c *connection, msg TimestampedMessage) {
	f, err := decodeFrame(msg.Data)
	if err != nil {
		m.logger.Warn("dropping frame", "error", err, "size", len(msg.Data))
		return
	}

	switch f.Event {
	case eventConnectionEstablished:
		m.established(c, f)
	case eventPing:
		if err := c.transport.Send(encodePong()); err != nil {
			m.logger.Debug("pong not sent", "error", err)
		}
	case eventPong:
	case eventError:
		m.protocolError(c, parseProtocolError(f.Data))
	case eventSubscriptionSucceeded:
		m.subscribed(c, f.Channel)
	case eventSubscriptionError:
		m.subscriptionFailed(c, f.Channel, errors.New(subscriptionErrorMessage(f.Data)))
	default:
		if f.Channel == "" || strings.HasPrefix(f.Event, internalPrefix) || strings.HasPrefix(f.Event, protocolPrefix) {
			m.logger.Debug("ignoring frame", "event", f.Event, "channel", f.Channel)
			return
		}
		m.dispatch(c, f, msg.ReceivedAt)
	}
}

func (m *Manager) established(c *connection, f frame) {
	est, err := parseEstablished(f.Data)
	if err != nil {
		m.fail(c, err)
		return
	}

	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	c.socketID = est.SocketID
	m.setStatusLocked(StatusConnected, "")
	var pending []*binding
	for _, b := range m.bindings {
		if b.state == subIdle {
			b.state = subPending
			pending = append(pending, b)
		}
	}
	m.mu.Unlock()

	m.logger.Info("realtime connected",
		"socket_id", est.SocketID,
		"activity_timeout", est.ActivityTimeout,
		"channels", len(pending),
	)
	m.flush()

	for _, b := range pending {
		go m.subscribe(c, est.SocketID, b)
	}
}

// subscribe authorizes and subscribes one binding on c.
func (m *Manager) subscribe(c *connection, socketID string, b *binding) {
	var auth string
	if m.auth != nil {
		ctx, cancel := context.WithTimeout(c.ctx, m.cfg.AuthTimeout)
		token, err := m.auth.AuthorizeChannel(ctx, socketID, b.channel)
		cancel()
		if err != nil {
			m.subscriptionFailed(c, b.channel, fmt.Errorf("authorize: %w", err))
			return
		}
		auth = token
	}

	m.wireMu.Lock()
	defer m.wireMu.Unlock()

	m.mu.Lock()
	live := m.conn == c && m.bindings[b.channel] == b
	m.mu.Unlock()
	if !live {
		m.logger.Debug("subscribe abandoned", "channel", b.channel)
		return
	}

	if err := c.transport.Send(encodeSubscribe(b.channel, auth)); err != nil {
		m.logger.Warn("subscribe not sent", "channel", b.channel, "error", err)
		return
	}
	b.sentOn = c
}

func (m *Manager) subscribed(c *connection, channel string) {
	m.mu.Lock()
	b, ok := m.bindings[channel]
	if ok && m.conn == c {
		b.state = subActive
	}
	m.mu.Unlock()

	m.logger.Debug("channel subscribed", "channel", channel, "bound", ok)
}

// subscriptionFailed surfaces a channel failure on the shared status.
func (m *Manager) subscriptionFailed(c *connection, channel string, err error) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	if b, ok := m.bindings[channel]; ok {
		b.state = subIdle
	}
	msg := fmt.Sprintf("subscribe %s: %v", channel, err)
	m.setStatusLocked(StatusError, msg)
	m.mu.Unlock()

	m.logger.Warn("channel subscription failed", "channel", channel, "error", err)
	m.flush()
}

func (m *Manager) protocolError(c *connection, pe protocolError) {
	if pe.fatal() {
		m.fail(c, pe)
		return
	}

	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.setStatusLocked(StatusError, pe.Error())
	m.mu.Unlock()

	m.logger.Warn("realtime protocol error", "code", pe.Code, "message", pe.Message)
	m.flush()
}

func (m *Manager) dispatch(c *connection, f frame, at time.Time) {
	m.mu.Lock()
	b := m.bindings[f.Channel]
	live := m.conn == c
	m.mu.Unlock()

	if !live {
		return
	}
	m.eventsReceived.Add(1)
	if b == nil {
		m.logger.Debug("event for unbound channel", "channel", f.Channel, "event", f.Event)
		return
	}
	b.deliver(Event{
		Channel:    f.Channel,
		Name:       f.Event,
		Data:       f.Data,
		ReceivedAt: at,
	})
}
