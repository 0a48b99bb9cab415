package watcher

import (
	"log/slog"
	"sync"

	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/session"
)

// Kind names the resource a watcher tracks.
type Kind string

const (
	KindWithdrawal Kind = "withdrawal"
	KindConversion Kind = "conversion"
)

// Source supplies snapshots and change notifications. *session.Store implements it.
type Source interface {
	Withdrawal() *model.WithdrawalRequest
	Conversion() *model.ConversionRequest
	Subscribe(fn session.Subscriber) func()
}

// Selector extracts one resource's snapshot from a Source.
type Selector func(Source) *Snapshot

// Withdrawal selects the in-flight withdrawal request.
func Withdrawal(src Source) *Snapshot {
	w := src.Withdrawal()
	if w == nil {
		return nil
	}
	return &Snapshot{ID: w.ID, Status: w.Status, Stage: w.Stage}
}

// Conversion selects the in-flight conversion request.
func Conversion(src Source) *Snapshot {
	c := src.Conversion()
	if c == nil {
		return nil
	}
	return &Snapshot{ID: c.ID, Status: c.Status, Stage: c.Stage}
}

// Presenter shows and hides the surface. Calls for one watcher are
// serialized. A Presenter may call IsOpen and SetOpen but not Evaluate.
type Presenter interface {
	Open(kind Kind, snap Snapshot)
	Close(kind Kind)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithActiveStatus sets the status that counts as in flight. Default pending.
func WithActiveStatus(s model.RequestStatus) Option {
	return func(w *Watcher) {
		if s != "" {
			w.active = s
		}
	}
}

// WithPresenter sets the surface driven by the watcher.
func WithPresenter(p Presenter) Option {
	return func(w *Watcher) { w.presenter = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver registers a callback for every decision other than Keep.
func WithObserver(fn func(Kind, Decision)) Option {
	return func(w *Watcher) { w.observe = fn }
}

// Watcher applies Transition to one resource kind and tracks whether its
// surface is open.
type Watcher struct {
	kind      Kind
	selector  Selector
	active    model.RequestStatus
	presenter Presenter
	observe   func(Kind, Decision)
	logger    *slog.Logger

	evalMu sync.Mutex // serializes Evaluate, including presenter calls

	mu   sync.Mutex
	mem  Memory
	open bool
}

// New creates a watcher for kind using selector.
func New(kind Kind, selector Selector, opts ...Option) *Watcher {
	w := &Watcher{
		kind:     kind,
		selector: selector,
		active:   model.StatusPending,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher", "kind", string(kind))
	return w
}

// NewWithdrawal creates a watcher for in-flight withdrawals.
func NewWithdrawal(opts ...Option) *Watcher {
	return New(KindWithdrawal, Withdrawal, opts...)
}

// NewConversion creates a watcher for in-flight conversions.
func NewConversion(opts ...Option) *Watcher {
	return New(KindConversion, Conversion, opts...)
}

// Kind returns the tracked resource kind.
func (w *Watcher) Kind() Kind {
	return w.kind
}

// Evaluate applies one snapshot and drives the presenter.
func (w *Watcher) Evaluate(snap *Snapshot) Decision {
	w.evalMu.Lock()
	defer w.evalMu.Unlock()

	w.mu.Lock()
	mem, decision := Transition(w.mem, snap, w.active)
	w.mem = mem
	wasOpen := w.open
	switch decision {
	case Open:
		w.open = true
	case Close:
		w.open = false
	}
	w.mu.Unlock()

	switch decision {
	case Open:
		w.logger.Info("surface opened", "id", snap.ID, "stage", snap.Stage.String())
		if w.presenter != nil {
			w.presenter.Open(w.kind, *snap)
		}
	case Close:
		if !wasOpen {
			// Already closed; nothing to tell anyone.
			return decision
		}
		w.logger.Info("surface closed")
		if w.presenter != nil {
			w.presenter.Close(w.kind)
		}
	default:
		return decision
	}

	if w.observe != nil {
		w.observe(w.kind, decision)
	}
	return decision
}

// Refresh evaluates the current snapshot from src.
func (w *Watcher) Refresh(src Source) Decision {
	return w.Evaluate(w.selector(src))
}

// Follow evaluates src now and again after every change that can affect
// this watcher's resource. The returned func stops following.
func (w *Watcher) Follow(src Source) func() {
	cancel := src.Subscribe(func(c session.Change) {
		if w.relevant(c.Kind) {
			w.Refresh(src)
		}
	})
	w.Refresh(src)
	return cancel
}

func (w *Watcher) relevant(k session.ChangeKind) bool {
	switch k {
	case session.ChangeUser, session.ChangeLogout:
		return true
	case session.ChangeWithdrawal:
		return w.kind == KindWithdrawal
	case session.ChangeConversion:
		return w.kind == KindConversion
	default:
		return false
	}
}

// IsOpen reports whether the surface is showing.
func (w *Watcher) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// SetOpen records that the surface was shown or dismissed outside the watcher.
// Memory is untouched, so a dismissed surface stays closed until the
// resource changes.
func (w *Watcher) SetOpen(open bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = open
}

// Memory returns the last announced (id, stage).
func (w *Watcher) Memory() Memory {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mem
}
