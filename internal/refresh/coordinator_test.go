package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/session"
)

// fakeFetcher returns queued results in order, then the default user.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	release chan struct{} // when set, each call blocks until it is closed
}

func (f *fakeFetcher) GetCurrentUser(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &model.User{ID: "42"}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu          sync.Mutex
	users       []*model.User
	invalidated []string

	entered chan struct{} // when set, signalled as SetCurrentUserFor starts
	hold    chan struct{} // when set, SetCurrentUserFor blocks until it is closed
	reject  string        // token the sink no longer holds
}

func (s *fakeSink) SetCurrentUserFor(token string, u *model.User) bool {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.hold != nil {
		<-s.hold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.reject {
		return false
	}
	s.users = append(s.users, u)
	return true
}

func (s *fakeSink) writes() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.invalidated)
}

func (s *fakeSink) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, key)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCoordinator_TokenSequence(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{}
	c := New(f, sink, quiet())

	for _, token := range []string{"", "T1", "T1", "T1", "", "T1"} {
		c.Evaluate(true, token)
		c.Wait()
	}

	assert.Equal(t, 2, f.count())
	assert.Equal(t, int64(2), c.Calls())
	assert.Len(t, sink.users, 2)
	assert.Equal(t, []string{session.CurrentUserKey, session.CurrentUserKey}, sink.invalidated)
}

func TestCoordinator_DedupWhileInFlight(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := New(f, &fakeSink{}, quiet())

	assert.True(t, c.Evaluate(true, "T1"))
	assert.False(t, c.Evaluate(true, "T1"), "memory is set before the fetch completes")

	close(f.release)
	c.Wait()
	assert.Equal(t, 1, f.count())
}

func TestCoordinator_NotHydrated(t *testing.T) {
	f := &fakeFetcher{}
	c := New(f, &fakeSink{}, quiet())

	assert.False(t, c.Evaluate(false, "T1"))
	c.Wait()
	assert.Equal(t, 0, f.count())

	assert.True(t, c.Evaluate(true, "T1"))
	c.Wait()
	assert.Equal(t, 1, f.count())
}

func TestCoordinator_RetriesAfterFailure(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("503 unavailable")}}
	sink := &fakeSink{}
	var results []string
	c := New(f, sink, quiet(), WithObserver(func(r string) { results = append(results, r) }))

	c.Evaluate(true, "T1")
	c.Wait()
	assert.Empty(t, sink.users)

	c.Evaluate(true, "T1")
	c.Wait()

	assert.Equal(t, 2, f.count())
	assert.Len(t, sink.users, 1)
	assert.Equal(t, []string{ResultError, ResultSuccess}, results)
}

func TestCoordinator_FailureKeepsNewerMemory(t *testing.T) {
	f := &fakeFetcher{errs: []error{errors.New("boom")}, release: make(chan struct{})}
	c := New(f, &fakeSink{}, quiet())

	c.Evaluate(true, "T1")
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, time.Millisecond)
	c.Evaluate(true, "T2")
	require.Eventually(t, func() bool { return f.count() == 2 }, time.Second, time.Millisecond)
	close(f.release)
	c.Wait()

	assert.False(t, c.Evaluate(true, "T2"), "T1's failure must not clear T2")
	assert.Equal(t, 2, f.count())
}

func TestCoordinator_SupersededResultIsDropped(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	sink := &fakeSink{}
	var mu sync.Mutex
	var results []string
	c := New(f, sink, quiet(), WithObserver(func(r string) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))

	c.Evaluate(true, "T1")
	c.Evaluate(true, "") // logged out mid-flight
	close(f.release)
	c.Wait()

	assert.Empty(t, sink.users)
	assert.Equal(t, []string{ResultSuperseded}, results)
}

func TestCoordinator_CloseSuppressesCompletion(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	sink := &fakeSink{}
	c := New(f, sink, quiet())

	c.Evaluate(true, "T1")
	c.Close()
	close(f.release)
	c.Wait()

	assert.Equal(t, 1, f.count(), "the in-flight call still runs")
	assert.Empty(t, sink.users)
	assert.Empty(t, sink.invalidated)
	assert.False(t, c.Evaluate(true, "T2"))
}

func TestCoordinator_CloseWaitsForWriteInProgress(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{entered: make(chan struct{}, 1), hold: make(chan struct{})}
	c := New(f, sink, quiet())

	c.Evaluate(true, "T1")
	<-sink.entered

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a completion was writing")
	case <-time.After(30 * time.Millisecond):
	}

	close(sink.hold)
	<-closed
	c.Wait()

	users, invalidated := sink.writes()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, invalidated, "the write in progress completes as a whole")
}

func TestCoordinator_NoWriteAfterCloseReturns(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	sink := &fakeSink{}
	c := New(f, sink, quiet())

	var results []string
	var mu sync.Mutex
	c.observe = func(r string) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	c.Evaluate(true, "T1")
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, time.Millisecond)
	c.Close()
	close(f.release)
	c.Wait()

	users, invalidated := sink.writes()
	assert.Zero(t, users)
	assert.Zero(t, invalidated)
	mu.Lock()
	assert.Equal(t, []string{ResultDiscarded}, results)
	mu.Unlock()
}

func TestCoordinator_SinkRejectsStaleToken(t *testing.T) {
	f := &fakeFetcher{}
	sink := &fakeSink{reject: "T1"}
	var results []string
	c := New(f, sink, quiet(), WithObserver(func(r string) { results = append(results, r) }))

	c.Evaluate(true, "T1")
	c.Wait()

	users, invalidated := sink.writes()
	assert.Zero(t, users)
	assert.Zero(t, invalidated)
	assert.Equal(t, []string{ResultSuperseded}, results)
}

func TestCoordinator_LogoutDuringFetchKeepsStoreEmpty(t *testing.T) {
	store := session.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	store.SetToken("T1")
	store.MarkHydrated()
	f := &fakeFetcher{release: make(chan struct{})}
	c := New(f, store, quiet())

	c.Evaluate(store.Hydrated(), store.Token())
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, time.Millisecond)
	store.Logout()
	close(f.release)
	c.Wait()

	assert.Nil(t, store.CurrentUser())
}

func TestCoordinator_FollowStore(t *testing.T) {
	store := session.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := &fakeFetcher{}
	c := New(f, store, quiet())

	stop := c.Follow(store)
	defer stop()

	store.SetToken("T1")
	c.Wait()
	assert.Equal(t, 0, f.count(), "not hydrated yet")

	store.MarkHydrated()
	c.Wait()
	require.Equal(t, 1, f.count())
	require.NotNil(t, store.CurrentUser())
	assert.Equal(t, "42", store.CurrentUser().ID)

	store.Logout()
	store.SetToken("T1")
	c.Wait()
	assert.Equal(t, 2, f.count(), "same token after logout refreshes again")
}
