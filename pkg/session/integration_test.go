package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/aretw0/rentsync/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func emailIs(r *session.Reconciler, email string) func() bool {
	return func() bool {
		u := r.State().User
		return u != nil && u.Email == email
	}
}

func TestReconciler_RunWithMemoryAdapters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := memory.NewDocumentStore()
	ids := memory.NewIdentityBroadcaster()
	cache := memory.NewCache()

	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", UpdatedAt: 100}))

	r := session.NewReconciler(docs, session.WithCache(cache))
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, ids) }()

	ids.Set(domain.Authenticated("u1"))
	require.Eventually(t, emailIs(r, "a@example.com"), waitFor, tick)
	assert.False(t, r.State().IsLoading)
	assert.Equal(t, 1, docs.TotalSubscribers())

	// An out-of-order redelivery is discarded.
	docs.Replay("u1", domain.Found(domain.UserRecord{ID: "u1", Email: "stale@example.com", UpdatedAt: 90}))
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "c@example.com", UpdatedAt: 150}))
	require.Eventually(t, emailIs(r, "c@example.com"), waitFor, tick)
	assert.Equal(t, int64(150), r.Watermark())

	cached, err := cache.Load(ctx, session.DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", cached.Email)

	ids.Set(domain.Unauthenticated())
	require.Eventually(t, func() bool { return r.State().User == nil }, waitFor, tick)
	assert.Eventually(t, func() bool { return docs.TotalSubscribers() == 0 }, waitFor, tick)

	_, err = cache.Load(ctx, session.DefaultCacheKey)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}

// gatedSource stalls the next Subscribe until released.
type gatedSource struct {
	*memory.DocumentStore

	mu      sync.Mutex
	gate    chan struct{}
	entered chan string
}

func newGatedSource(docs *memory.DocumentStore) *gatedSource {
	return &gatedSource{DocumentStore: docs, entered: make(chan string, 1)}
}

func (g *gatedSource) hold() (release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate := make(chan struct{})
	g.gate = gate
	return func() { close(gate) }
}

func (g *gatedSource) Subscribe(ctx context.Context, subjectID string) (ports.Subscription, error) {
	g.mu.Lock()
	gate := g.gate
	g.gate = nil
	g.mu.Unlock()

	if gate != nil {
		g.entered <- subjectID
		<-gate
	}
	return g.DocumentStore.Subscribe(ctx, subjectID)
}

func TestReconciler_SignOutSurvivesSlowSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := memory.NewDocumentStore()
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", UpdatedAt: 100}))
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u2", Email: "b@example.com", UpdatedAt: 200}))

	src := newGatedSource(docs)
	ids := memory.NewIdentityBroadcaster()
	cache := memory.NewCache()

	r := session.NewReconciler(src, session.WithCache(cache))
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, ids) }()

	ids.Set(domain.Authenticated("u1"))
	require.Eventually(t, emailIs(r, "a@example.com"), waitFor, tick)

	release := src.hold()
	ids.Set(domain.Authenticated("u2"))
	select {
	case subject := <-src.entered:
		assert.Equal(t, "u2", subject)
	case <-time.After(waitFor):
		t.Fatal("Subscribe was not called")
	}

	// Queued while the reconciler is stuck on the network.
	ids.Set(domain.Pending())
	ids.Set(domain.Unauthenticated())
	ids.Set(domain.Pending())
	release()

	require.Eventually(t, func() bool {
		return r.Identity() == domain.Pending() && r.State().User == nil
	}, waitFor, tick, "signed-out user still cached")
	assert.False(t, r.IsAuthenticated())
	assert.Eventually(t, func() bool { return docs.TotalSubscribers() == 0 }, waitFor, tick)

	_, err := cache.Load(ctx, session.DefaultCacheKey)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReconciler_SubjectSwitchKeepsOneSubscription(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "one@example.com", UpdatedAt: 10}))
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u2", Email: "two@example.com", UpdatedAt: 5}))

	r := session.NewReconciler(docs)
	defer r.Close()

	r.Update(ctx, domain.Authenticated("u1"))
	require.Eventually(t, emailIs(r, "one@example.com"), waitFor, tick)

	r.Update(ctx, domain.Authenticated("u2"))
	assert.Equal(t, 0, docs.Subscribers("u1"))
	assert.Equal(t, 1, docs.Subscribers("u2"))

	// u2's document is older than u1's, but the watermark restarts per subscription.
	require.Eventually(t, emailIs(r, "two@example.com"), waitFor, tick)
	assert.Equal(t, int64(5), r.Watermark())
}

func TestReconciler_TransportErrorFallsBackToFetch(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", UpdatedAt: 100}))

	var fallbacks []*domain.FallbackEvent
	fell := make(chan struct{}, 1)
	r := session.NewReconciler(docs, session.WithLifecycleHooks(domain.LifecycleHooks{
		OnFallback: func(_ context.Context, e *domain.FallbackEvent) {
			fallbacks = append(fallbacks, e)
			fell <- struct{}{}
		},
	}))
	defer r.Close()

	r.Update(ctx, domain.Authenticated("u1"))
	require.Eventually(t, emailIs(r, "a@example.com"), waitFor, tick)

	cause := errors.New("connection reset")
	docs.Break("u1", cause)

	select {
	case <-fell:
	case <-time.After(waitFor):
		t.Fatal("expected a fallback fetch")
	}

	assert.Equal(t, "a@example.com", r.State().User.Email)
	assert.False(t, r.State().IsLoading)
	_, ok := r.Subscribed()
	assert.False(t, ok)
	require.Len(t, fallbacks, 1)
	assert.ErrorIs(t, fallbacks[0].Cause, cause)
	assert.NoError(t, fallbacks[0].Err)

	// Re-entering the authenticated state subscribes again.
	r.Update(ctx, domain.Pending())
	r.Update(ctx, domain.Authenticated("u1"))
	assert.Equal(t, 1, docs.Subscribers("u1"))
}

func TestReconciler_TransportErrorWithFailingFetchClears(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", UpdatedAt: 100}))

	r := session.NewReconciler(docs)
	defer r.Close()

	r.Update(ctx, domain.Authenticated("u1"))
	require.Eventually(t, emailIs(r, "a@example.com"), waitFor, tick)

	docs.FailFetch(errors.New("offline"))
	docs.Break("u1", errors.New("connection reset"))

	require.Eventually(t, func() bool {
		s := r.State()
		return s.User == nil && !s.IsLoading
	}, waitFor, tick)
	assert.Equal(t, int64(0), r.Watermark())
}

func TestReconciler_RestoreAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	cache := memory.NewCache()
	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", UpdatedAt: 100}))

	first := session.NewReconciler(docs, session.WithCache(cache))
	first.Update(ctx, domain.Authenticated("u1"))
	require.Eventually(t, emailIs(first, "a@example.com"), waitFor, tick)
	require.NoError(t, first.Close())
	assert.Equal(t, 0, docs.TotalSubscribers())

	second := session.NewReconciler(docs, session.WithCache(cache))
	defer second.Close()
	require.NoError(t, second.Restore(ctx))

	state := second.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "a@example.com", state.User.Email)
	assert.True(t, state.IsLoading, "restored user stays loading until the session resolves")
}

func TestReconciler_StateChangeHook(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()

	changes := make(chan domain.CachedUser, 16)
	r := session.NewReconciler(docs, session.WithLifecycleHooks(domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, s domain.CachedUser) { changes <- s },
	}))
	defer r.Close()

	r.Update(ctx, domain.Authenticated("u1"))

	// The document does not exist yet: the first delivery resolves loading with no user.
	select {
	case s := <-changes:
		assert.Nil(t, s.User)
		assert.False(t, s.IsLoading)
	case <-time.After(waitFor):
		t.Fatal("expected a state change")
	}

	require.NoError(t, docs.Put(ctx, domain.UserRecord{ID: "u1", FirstName: "Ada", LastName: "Lovelace", UpdatedAt: 1}))
	select {
	case s := <-changes:
		require.NotNil(t, s.User)
		assert.Equal(t, "Ada Lovelace", s.User.FullName())
	case <-time.After(waitFor):
		t.Fatal("expected a state change")
	}
}
