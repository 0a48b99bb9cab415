// Package refresh refetches the current user once per distinct auth token.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/session"
)

// Fetcher loads the current user. *api.Client implements it.
type Fetcher interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// Sink receives refreshed users. *session.Store implements it.
type Sink interface {
	SetCurrentUserFor(token string, u *model.User) bool
	Invalidate(key string)
}

// Source supplies the gate inputs for Follow. *session.Store implements it.
type Source interface {
	Hydrated() bool
	Token() string
	Subscribe(fn session.Subscriber) func()
}

// Result labels for observers.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultSuperseded = "superseded"
	ResultDiscarded  = "discarded"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds each fetch. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithObserver is called with a Result label when each fetch completes.
func WithObserver(fn func(result string)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// Coordinator issues at most one refresh per distinct token. The token a
// refresh was issued for is remembered before the fetch starts; a failed
// fetch forgets it so the next evaluation retries.
type Coordinator struct {
	fetch   Fetcher
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	observe func(string)

	// writeMu is held while a completion decides and writes to the sink, so
	// Close cannot land between the closed check and the write.
	writeMu sync.Mutex

	mu     sync.Mutex
	memory string
	closed bool

	wg    sync.WaitGroup
	calls atomic.Int64
}

// New creates a Coordinator.
func New(fetch Fetcher, sink Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetch:  fetch,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "refresh")
	return c
}

// Evaluate applies the gate. An empty token is an absent token. Returns
// whether a fetch was started.
func (c *Coordinator) Evaluate(hydrated bool, token string) bool {
	c.mu.Lock()
	if c.closed || !hydrated {
		c.mu.Unlock()
		return false
	}
	if token == "" {
		c.memory = ""
		c.mu.Unlock()
		return false
	}
	if token == c.memory {
		c.mu.Unlock()
		return false
	}
	c.memory = token
	c.wg.Add(1)
	c.mu.Unlock()

	c.calls.Add(1)
	go c.refresh(token)
	return true
}

func (c *Coordinator) refresh(token string) {
	defer c.wg.Done()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	user, err := c.fetch.GetCurrentUser(ctx)

	c.writeMu.Lock()
	c.mu.Lock()
	closed := c.closed
	current := c.memory == token
	if err != nil && !closed && current {
		c.memory = ""
	}
	c.mu.Unlock()

	if !closed && err == nil && current {
		if c.sink.SetCurrentUserFor(token, user) {
			c.sink.Invalidate(session.CurrentUserKey)
		} else {
			current = false
		}
	}
	c.writeMu.Unlock()

	switch {
	case closed:
		c.logger.Debug("refresh completed after close", "error", err)
		c.report(ResultDiscarded)
	case err != nil:
		c.logger.Warn("refresh current user failed", "error", err, "duration", time.Since(start))
		c.report(ResultError)
	case !current:
		// The token changed while the fetch was in flight.
		c.logger.Debug("refresh superseded", "duration", time.Since(start))
		c.report(ResultSuperseded)
	default:
		c.logger.Info("current user refreshed", "user_id", userID(user), "duration", time.Since(start))
		c.report(ResultSuccess)
	}
}

func (c *Coordinator) report(result string) {
	if c.observe != nil {
		c.observe(result)
	}
}

// Follow evaluates src now and after every token, hydration or logout change.
func (c *Coordinator) Follow(src Source) func() {
	cancel := src.Subscribe(func(ch session.Change) {
		switch ch.Kind {
		case session.ChangeToken, session.ChangeHydrated, session.ChangeLogout:
			c.Evaluate(src.Hydrated(), src.Token())
		}
	})
	c.Evaluate(src.Hydrated(), src.Token())
	return cancel
}

// Close stops completions from mutating anything. A completion already
// writing to the sink finishes first; once Close returns nothing else is
// written. In-flight fetches are not cancelled. Close must not be called from
// inside the sink.
func (c *Coordinator) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Wait blocks until every started fetch has completed.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Calls returns how many fetches have been started.
func (c *Coordinator) Calls() int64 {
	return c.calls.Load()
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
