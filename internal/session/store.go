package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/fundsync/internal/model"
)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Store is the in-memory session state. Values handed out are copies.
type Store struct {
	logger *slog.Logger

	mu            sync.Mutex
	token         string
	hydrated      bool
	user          *model.User
	invalidations map[string]time.Time

	subs     []subscriberEntry
	nextSub  uint64
	pending  []Change
	draining bool
}

// New creates an empty, non-hydrated store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:        logger.With("component", "session"),
		invalidations: make(map[string]time.Time),
	}
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the bearer token.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	if s.token == token {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.enqueueLocked(Change{Kind: ChangeToken})
	s.mu.Unlock()

	s.flush()
}

// Hydrated reports whether persisted state has been restored.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// MarkHydrated records that persisted state has been restored. Only the
// first call notifies.
func (s *Store) MarkHydrated() {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}
	s.hydrated = true
	s.enqueueLocked(Change{Kind: ChangeHydrated})
	s.mu.Unlock()

	s.flush()
}

// CurrentUser returns a copy of the current user, or nil.
func (s *Store) CurrentUser() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// Withdrawal returns the in-flight withdrawal request, or nil.
func (s *Store) Withdrawal() *model.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.WithdrawalRequest == nil {
		return nil
	}
	w := *s.user.WithdrawalRequest
	return &w
}

// Conversion returns the in-flight conversion request, or nil.
func (s *Store) Conversion() *model.ConversionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ConversionRequest == nil {
		return nil
	}
	c := *s.user.ConversionRequest
	return &c
}

// SetCurrentUser replaces the current user. A nil user clears it.
func (s *Store) SetCurrentUser(u *model.User) {
	s.mu.Lock()
	s.user = u.Clone()
	delete(s.invalidations, CurrentUserKey)
	s.enqueueLocked(Change{Kind: ChangeUser})
	s.mu.Unlock()

	s.flush()
}

// SetCurrentUserFor replaces the current user only while token is still the
// session token. It reports whether the user was stored. Fetches started under
// a token use it so a logout or token change during the fetch wins.
func (s *Store) SetCurrentUserFor(token string, u *model.User) bool {
	s.mu.Lock()
	if token == "" || s.token != token {
		s.mu.Unlock()
		return false
	}
	s.user = u.Clone()
	delete(s.invalidations, CurrentUserKey)
	s.enqueueLocked(Change{Kind: ChangeUser})
	s.mu.Unlock()

	s.flush()
	return true
}

// ApplyWithdrawal replaces the user's withdrawal request with a pushed update.
// nil clears it. Updates older than the stored request with the same ID are
// ignored. Returns whether the store changed.
func (s *Store) ApplyWithdrawal(w *model.WithdrawalRequest) bool {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		s.logger.Debug("withdrawal update before user is loaded")
		return false
	}
	cur := s.user.WithdrawalRequest
	if w != nil && cur != nil && cur.ID == w.ID && w.UpdatedAt.Before(cur.UpdatedAt) {
		s.mu.Unlock()
		s.logger.Debug("ignoring stale withdrawal update", "id", w.ID, "updated_at", w.UpdatedAt)
		return false
	}

	if w == nil {
		s.user.WithdrawalRequest = nil
	} else {
		cp := *w
		s.user.WithdrawalRequest = &cp
	}
	s.enqueueLocked(Change{Kind: ChangeWithdrawal})
	s.mu.Unlock()

	s.flush()
	return true
}

// ApplyConversion replaces the user's conversion request with a pushed update.
// Same rules as ApplyWithdrawal.
func (s *Store) ApplyConversion(c *model.ConversionRequest) bool {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		s.logger.Debug("conversion update before user is loaded")
		return false
	}
	cur := s.user.ConversionRequest
	if c != nil && cur != nil && cur.ID == c.ID && c.UpdatedAt.Before(cur.UpdatedAt) {
		s.mu.Unlock()
		s.logger.Debug("ignoring stale conversion update", "id", c.ID, "updated_at", c.UpdatedAt)
		return false
	}

	if c == nil {
		s.user.ConversionRequest = nil
	} else {
		cp := *c
		s.user.ConversionRequest = &cp
	}
	s.enqueueLocked(Change{Kind: ChangeConversion})
	s.mu.Unlock()

	s.flush()
	return true
}

// Invalidate marks a query key stale so followers refetch it.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	s.invalidations[key] = time.Now()
	s.enqueueLocked(Change{Kind: ChangeInvalidated, Key: key})
	s.mu.Unlock()

	s.flush()
}

// Stale reports whether key was invalidated and not refreshed since.
func (s *Store) Stale(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.invalidations[key]
	return ok
}

// Logout clears the token and the current user.
func (s *Store) Logout() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	clear(s.invalidations)
	s.enqueueLocked(Change{Kind: ChangeLogout})
	s.mu.Unlock()

	s.flush()
	s.logger.Info("session cleared")
}

// Subscribe registers fn for every subsequent change. The returned func
// unregisters it.
func (s *Store) Subscribe(fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriberEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, e := range s.subs {
				if e.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) enqueueLocked(c Change) {
	s.pending = append(s.pending, c)
}

// flush delivers queued changes in order from a single goroutine at a time.
// Subscribers may mutate the store; those changes are delivered after the
// current one.
func (s *Store) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscriberEntry, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, e := range subs {
			s.deliver(e, c)
		}

		s.mu.Lock()
	}
	s.pending = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) deliver(e subscriberEntry, c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session subscriber panicked", "change", c.Kind, "panic", r)
		}
	}()
	e.fn(c)
}
