package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fundsync/internal/model"
)

func newTestStore() *Store {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) record(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) kinds() []ChangeKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChangeKind, len(l.changes))
	for i, c := range l.changes {
		out[i] = c.Kind
	}
	return out
}

func testUser() *model.User {
	return &model.User{
		ID:    "42",
		Email: "ada@example.com",
		WithdrawalRequest: &model.WithdrawalRequest{
			ID:        "w1",
			Status:    model.StatusPending,
			Stage:     model.StageOf("review"),
			Amount:    model.NewMoney(decimal.RequireFromString("125.50"), "USD"),
			UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func TestStore_Token(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	s.Subscribe(log.record)

	assert.Equal(t, "", s.Token())
	s.SetToken("T1")
	s.SetToken("T1")
	assert.Equal(t, "T1", s.Token())
	assert.Equal(t, []ChangeKind{ChangeToken}, log.kinds(), "unchanged token does not notify")
}

func TestStore_MarkHydratedOnce(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	s.Subscribe(log.record)

	require.False(t, s.Hydrated())
	s.MarkHydrated()
	s.MarkHydrated()

	assert.True(t, s.Hydrated())
	assert.Equal(t, []ChangeKind{ChangeHydrated}, log.kinds())
}

func TestStore_CurrentUserIsACopy(t *testing.T) {
	s := newTestStore()
	s.SetCurrentUser(testUser())

	u := s.CurrentUser()
	require.NotNil(t, u)
	u.WithdrawalRequest.Stage = model.StageOf("mutated")

	assert.Equal(t, "review", s.Withdrawal().Stage.String())
}

func TestStore_SetCurrentUserFor(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	s.SetToken("T1")
	s.Subscribe(log.record)

	assert.False(t, s.SetCurrentUserFor("T0", testUser()), "stale token")
	assert.False(t, s.SetCurrentUserFor("", testUser()), "empty token")
	assert.Nil(t, s.CurrentUser())
	assert.Empty(t, log.kinds())

	assert.True(t, s.SetCurrentUserFor("T1", testUser()))
	require.NotNil(t, s.CurrentUser())
	assert.Equal(t, []ChangeKind{ChangeUser}, log.kinds())

	s.Logout()
	assert.False(t, s.SetCurrentUserFor("T1", testUser()), "logged out")
	assert.Nil(t, s.CurrentUser())
}

func TestStore_ApplyWithdrawal(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	s.Subscribe(log.record)

	assert.False(t, s.ApplyWithdrawal(&model.WithdrawalRequest{ID: "w1"}), "ignored before a user exists")

	s.SetCurrentUser(testUser())
	base := s.Withdrawal().UpdatedAt

	newer := &model.WithdrawalRequest{ID: "w1", Status: model.StatusPending, Stage: model.StageOf("sent"), UpdatedAt: base.Add(time.Minute)}
	assert.True(t, s.ApplyWithdrawal(newer))
	assert.Equal(t, "sent", s.Withdrawal().Stage.String())

	stale := &model.WithdrawalRequest{ID: "w1", Stage: model.StageOf("review"), UpdatedAt: base}
	assert.False(t, s.ApplyWithdrawal(stale))
	assert.Equal(t, "sent", s.Withdrawal().Stage.String())

	other := &model.WithdrawalRequest{ID: "w2", Stage: model.StageOfInt(1), UpdatedAt: base}
	assert.True(t, s.ApplyWithdrawal(other), "a different request replaces regardless of time")

	assert.True(t, s.ApplyWithdrawal(nil))
	assert.Nil(t, s.Withdrawal())

	assert.Equal(t, []ChangeKind{ChangeUser, ChangeWithdrawal, ChangeWithdrawal, ChangeWithdrawal}, log.kinds())
}

func TestStore_ApplyConversion(t *testing.T) {
	s := newTestStore()
	s.SetCurrentUser(testUser())

	c := &model.ConversionRequest{ID: "c1", Status: model.StatusPending, Stage: model.StageOfInt(2)}
	assert.True(t, s.ApplyConversion(c))

	got := s.Conversion()
	require.NotNil(t, got)
	assert.Equal(t, "2", got.Stage.String())

	assert.True(t, s.ApplyConversion(nil))
	assert.Nil(t, s.Conversion())
}

func TestStore_InvalidateAndRefresh(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	s.Subscribe(log.record)

	s.Invalidate(CurrentUserKey)
	assert.True(t, s.Stale(CurrentUserKey))

	s.SetCurrentUser(testUser())
	assert.False(t, s.Stale(CurrentUserKey))

	log.mu.Lock()
	assert.Equal(t, Change{Kind: ChangeInvalidated, Key: CurrentUserKey}, log.changes[0])
	log.mu.Unlock()
}

func TestStore_Logout(t *testing.T) {
	s := newTestStore()
	s.SetToken("T1")
	s.MarkHydrated()
	s.SetCurrentUser(testUser())

	s.Logout()

	assert.Equal(t, "", s.Token())
	assert.Nil(t, s.CurrentUser())
	assert.True(t, s.Hydrated(), "hydration survives logout")
}

func TestStore_Unsubscribe(t *testing.T) {
	s := newTestStore()
	log := &changeLog{}
	cancel := s.Subscribe(log.record)

	s.SetToken("a")
	cancel()
	cancel()
	s.SetToken("b")

	assert.Equal(t, []ChangeKind{ChangeToken}, log.kinds())
}

func TestStore_ReentrantSubscriberKeepsOrder(t *testing.T) {
	s := newTestStore()
	s.SetCurrentUser(testUser())

	var order []ChangeKind
	s.Subscribe(func(c Change) {
		order = append(order, c.Kind)
		if c.Kind == ChangeToken {
			// Mutating from a subscriber must not deadlock.
			s.Invalidate(CurrentUserKey)
		}
	})
	s.Subscribe(func(c Change) {
		order = append(order, c.Kind)
	})

	s.SetToken("T1")

	assert.Equal(t, []ChangeKind{ChangeToken, ChangeToken, ChangeInvalidated, ChangeInvalidated}, order)
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "withdrawal", ChangeWithdrawal.String())
	assert.Equal(t, "unknown", ChangeKind(99).String())
}
