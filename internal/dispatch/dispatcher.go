package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/rickgao/fundsync/internal/api"
	"github.com/rickgao/fundsync/internal/realtime"
	"github.com/rickgao/fundsync/internal/session"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver is called with the event name and outcome of every event.
func WithObserver(fn func(event, outcome string)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// Dispatcher applies pushed channel events to the session store.
type Dispatcher struct {
	sub     Subscriber
	store   Store
	logger  *slog.Logger
	observe func(event, outcome string)

	mu      sync.Mutex
	userID  string
	channel string
	unbind  func()

	received    atomic.Int64
	applied     atomic.Int64
	ignored     atomic.Int64
	parseErrors atomic.Int64
}

// New creates a Dispatcher.
func New(sub Subscriber, store Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sub:    sub,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// Bind subscribes to userID's channel, replacing any other user's binding.
// Binding the same user again is a no-op; an empty id unbinds.
func (d *Dispatcher) Bind(userID string) {
	if userID == "" {
		d.Unbind()
		return
	}

	d.mu.Lock()
	if d.userID == userID {
		d.mu.Unlock()
		return
	}
	prev := d.unbind
	channel := UserChannel(userID)
	d.userID = userID
	d.channel = channel
	d.unbind = d.sub.SubscribeToPrivateChannel(channel, d.Handlers())
	d.mu.Unlock()

	if prev != nil {
		prev()
	}
	d.logger.Info("user channel bound", "channel", channel)
}

// Unbind drops the current user's channel binding, if any.
func (d *Dispatcher) Unbind() {
	d.mu.Lock()
	unbind := d.unbind
	channel := d.channel
	d.userID = ""
	d.channel = ""
	d.unbind = nil
	d.mu.Unlock()

	if unbind != nil {
		unbind()
		d.logger.Info("user channel unbound", "channel", channel)
	}
}

// Follow binds whichever user the store holds, now and after every user or
// logout change.
func (d *Dispatcher) Follow(src Store) func() {
	rebind := func() {
		if u := src.CurrentUser(); u != nil {
			d.Bind(u.ID)
			return
		}
		d.Unbind()
	}

	cancel := src.Subscribe(func(c session.Change) {
		switch c.Kind {
		case session.ChangeUser, session.ChangeLogout:
			rebind()
		}
	})
	rebind()
	return cancel
}

// Handlers returns the event handlers for a user channel.
func (d *Dispatcher) Handlers() realtime.Handlers {
	return realtime.Handlers{
		EventWithdrawalUpdated: d.handleWithdrawal,
		EventConversionUpdated: d.handleConversion,
		EventUserUpdated:       d.handleUser,
	}
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	channel := d.channel
	d.mu.Unlock()

	return Stats{
		Channel:     channel,
		Received:    d.received.Load(),
		Applied:     d.applied.Load(),
		Ignored:     d.ignored.Load(),
		ParseErrors: d.parseErrors.Load(),
	}
}

func (d *Dispatcher) handleWithdrawal(ev realtime.Event) {
	d.received.Add(1)

	raw, err := unwrap(ev.Data, "withdrawal_request")
	if err != nil {
		d.parseFailed(ev, err)
		return
	}
	if raw == nil {
		d.finish(ev, d.store.ApplyWithdrawal(nil))
		return
	}

	var w api.APIWithdrawalRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		d.parseFailed(ev, err)
		return
	}
	d.finish(ev, d.store.ApplyWithdrawal(w.ToModel()))
}

func (d *Dispatcher) handleConversion(ev realtime.Event) {
	d.received.Add(1)

	raw, err := unwrap(ev.Data, "conversion_request")
	if err != nil {
		d.parseFailed(ev, err)
		return
	}
	if raw == nil {
		d.finish(ev, d.store.ApplyConversion(nil))
		return
	}

	var c api.APIConversionRequest
	if err := json.Unmarshal(raw, &c); err != nil {
		d.parseFailed(ev, err)
		return
	}
	d.finish(ev, d.store.ApplyConversion(c.ToModel()))
}

func (d *Dispatcher) handleUser(ev realtime.Event) {
	d.received.Add(1)

	raw, err := unwrap(ev.Data, "user")
	if err == nil && raw == nil {
		err = ErrEmptyPayload
	}
	if err != nil {
		d.parseFailed(ev, err)
		return
	}

	var u api.APIUser
	if err := json.Unmarshal(raw, &u); err != nil {
		d.parseFailed(ev, err)
		return
	}

	d.mu.Lock()
	bound := d.userID
	d.mu.Unlock()
	if u.ID != bound {
		d.logger.Warn("user update for another user", "channel", ev.Channel, "user_id", u.ID)
		d.finish(ev, false)
		return
	}

	d.store.SetCurrentUser(u.ToModel())
	d.finish(ev, true)
}

func (d *Dispatcher) finish(ev realtime.Event, applied bool) {
	outcome := OutcomeApplied
	if applied {
		d.applied.Add(1)
	} else {
		d.ignored.Add(1)
		outcome = OutcomeIgnored
	}
	d.logger.Debug("event handled", "channel", ev.Channel, "event", ev.Name, "outcome", outcome)
	d.report(ev.Name, outcome)
}

func (d *Dispatcher) parseFailed(ev realtime.Event, err error) {
	d.parseErrors.Add(1)
	d.logger.Warn("failed to parse event", "channel", ev.Channel, "event", ev.Name, "error", err)
	d.report(ev.Name, OutcomeParseError)
}

func (d *Dispatcher) report(event, outcome string) {
	if d.observe != nil {
		d.observe(event, outcome)
	}
}

// unwrap returns the resource object from a payload that is either the bare
// object or an envelope keyed by key. A nil result with a nil error means the
// resource was explicitly cleared.
func unwrap(data []byte, key string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json (%d bytes)", len(data))
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		return nil, nil
	}
	if !root.IsObject() {
		return nil, fmt.Errorf("expected object, got %s", root.Type)
	}

	if inner := root.Get(key); inner.Exists() {
		if inner.Type == gjson.Null {
			return nil, nil
		}
		return []byte(inner.Raw), nil
	}
	return data, nil
}
