package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/fundsync/internal/api"
	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/realtime"
	"github.com/rickgao/fundsync/internal/session"
)

// Poll results.
const (
	ResultSuccess      = "success"
	ResultError        = "error"
	ResultUnauthorized = "unauthorized"
	ResultLive         = "skipped_live"
	ResultSignedOut    = "skipped_signed_out"
	ResultSuperseded   = "superseded"
)

// Fetcher loads the current user. *api.Client implements it.
type Fetcher interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// Store is the session state the poller reads and writes.
type Store interface {
	Token() string
	SetCurrentUserFor(token string, u *model.User) bool
	Subscribe(fn session.Subscriber) func()
}

// StatusSource reports the realtime connection status. *realtime.Manager implements it.
type StatusSource interface {
	Status() realtime.Status
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Polls   int64 // Fetches attempted
	Errors  int64
	Skipped int64
}

// Poller periodically refetches the current user while realtime is down.
type Poller struct {
	cfg     Config
	fetch   Fetcher
	store   Store
	conn    StatusSource
	logger  *slog.Logger
	observe func(result string)

	trigger chan struct{}
	unwatch func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polls   atomic.Int64
	errors  atomic.Int64
	skipped atomic.Int64
}

// New creates a new Poller. conn may be nil when realtime is disabled.
func New(cfg Config, fetch Fetcher, store Store, conn StatusSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		fetch:   fetch,
		store:   store,
		conn:    conn,
		logger:  logger.With("component", "poller"),
		trigger: make(chan struct{}, 1),
	}
}

// SetObserver registers a callback for every poll result. Call before Start.
func (p *Poller) SetObserver(fn func(result string)) {
	p.observe = fn
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.unwatch = p.store.Subscribe(func(c session.Change) {
		if c.Kind == session.ChangeInvalidated && c.Key == session.CurrentUserKey {
			p.Trigger()
		}
	})

	p.wg.Add(1)
	go p.run()

	p.logger.Info("current user poller started", "interval", p.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.unwatch != nil {
		p.unwatch()
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("current user poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a poll as soon as possible. Requests coalesce.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:   p.polls.Load(),
		Errors:  p.errors.Load(),
		Skipped: p.skipped.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll(p.ctx)
		case <-p.trigger:
			p.poll(p.ctx)
		}
	}
}

// poll runs one cycle and returns its result.
func (p *Poller) poll(ctx context.Context) string {
	result := p.pollOnce(ctx)
	if p.observe != nil {
		p.observe(result)
	}
	return result
}

func (p *Poller) pollOnce(ctx context.Context) string {
	if p.conn != nil && p.conn.Status() == realtime.StatusConnected {
		p.skipped.Add(1)
		p.logger.Debug("realtime connected, skipping poll")
		return ResultLive
	}
	token := p.store.Token()
	if token == "" {
		p.skipped.Add(1)
		p.logger.Debug("signed out, skipping poll")
		return ResultSignedOut
	}

	start := time.Now()
	p.polls.Add(1)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	user, err := p.fetch.GetCurrentUser(ctx)
	if err != nil {
		p.errors.Add(1)
		if api.IsUnauthorized(err) {
			p.logger.Warn("token rejected while polling", "err", err)
			return ResultUnauthorized
		}
		p.logger.Warn("failed to poll current user", "err", err)
		return ResultError
	}

	if !p.store.SetCurrentUserFor(token, user) {
		// Logged out or token rotated while the fetch was in flight.
		p.logger.Debug("poll result superseded", "duration", time.Since(start))
		return ResultSuperseded
	}
	p.logger.Debug("poll cycle complete", "user_id", user.ID, "duration", time.Since(start))
	return ResultSuccess
}
