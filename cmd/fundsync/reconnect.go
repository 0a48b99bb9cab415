package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/fundsync/internal/realtime"
)

// connector is the part of the connection manager the retry policy drives.
type connector interface {
	Connect(ctx context.Context)
	OnConnectionChange(l realtime.Listener) func()
}

// reconnector redials after a connection error with exponential backoff.
// A successful connection resets the delay.
type reconnector struct {
	conn    connector
	base    time.Duration
	max     time.Duration
	logger  *slog.Logger
	afterFn func(time.Duration, func()) *time.Timer

	mu       sync.Mutex
	ctx      context.Context
	wait     time.Duration
	attempts int
	timer    *time.Timer
	stopped  bool
	unlisten func()
}

func newReconnector(conn connector, base, max time.Duration, logger *slog.Logger) *reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	if max < base {
		max = base
	}
	return &reconnector{
		conn:    conn,
		base:    base,
		max:     max,
		wait:    base,
		logger:  logger.With("component", "reconnector"),
		afterFn: time.AfterFunc,
	}
}

// Start registers the policy. Redials use ctx.
func (r *reconnector) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	unlisten := r.conn.OnConnectionChange(r.onStatus)

	r.mu.Lock()
	r.unlisten = unlisten
	r.mu.Unlock()
}

// Stop cancels a pending redial and unregisters the policy.
func (r *reconnector) Stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	unlisten := r.unlisten
	r.unlisten = nil
	r.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}
}

// Attempts returns how many redials have been scheduled since the last
// successful connection.
func (r *reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *reconnector) onStatus(status realtime.Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	switch status {
	case realtime.StatusConnected:
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.wait = r.base
		r.attempts = 0

	case realtime.StatusError:
		if r.timer != nil {
			return
		}
		delay := r.wait
		r.attempts++
		r.wait *= 2
		if r.wait > r.max {
			r.wait = r.max
		}
		r.logger.Warn("connection error, scheduling reconnect",
			"error", message,
			"attempt", r.attempts,
			"delay", delay,
		)
		r.timer = r.afterFn(delay, r.fire)
	}
}

func (r *reconnector) fire() {
	r.mu.Lock()
	r.timer = nil
	ctx := r.ctx
	if r.stopped || ctx == nil || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.logger.Info("attempting reconnection")
	r.conn.Connect(ctx)
}
