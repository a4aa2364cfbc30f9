package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, sub ports.Subscription) (domain.FeedEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.FeedEvent{}, false
}

func TestDocumentStore_DeliversCurrentDocumentFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	require.NoError(t, store.Put(ctx, domain.UserRecord{ID: "u1", UpdatedAt: 10}))

	sub, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()

	ev, ok := next(t, sub)
	require.True(t, ok)
	assert.True(t, ev.Snapshot.Exists)
	assert.Equal(t, int64(10), ev.Snapshot.User.UpdatedAt)
}

func TestDocumentStore_ReplayDoesNotStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	require.NoError(t, store.Put(ctx, domain.UserRecord{ID: "u1", UpdatedAt: 100}))

	sub, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()
	_, _ = next(t, sub)

	store.Replay("u1", domain.Found(domain.UserRecord{ID: "u1", UpdatedAt: 50}))

	ev, ok := next(t, sub)
	require.True(t, ok)
	assert.Equal(t, int64(50), ev.Snapshot.User.UpdatedAt)

	snap, err := store.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.User.UpdatedAt)
}

func TestDocumentStore_BreakEndsSubscription(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()

	sub, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	_, _ = next(t, sub)
	assert.Equal(t, 1, store.Subscribers("u1"))

	boom := errors.New("connection reset")
	store.Break("u1", boom)

	ev, ok := next(t, sub)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, boom)

	_, ok = next(t, sub)
	assert.False(t, ok, "channel should close after a transport error")
	assert.Equal(t, 0, store.Subscribers("u1"))
	assert.NoError(t, sub.Close())
}

func TestDocumentStore_FaultInjection(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	boom := errors.New("unavailable")

	store.FailSubscribe(boom)
	_, err := store.Subscribe(ctx, "u1")
	assert.ErrorIs(t, err, boom)

	store.FailFetch(boom)
	_, err = store.Fetch(ctx, "u1")
	assert.ErrorIs(t, err, boom)

	store.FailSubscribe(nil)
	store.FailFetch(nil)
	snap, err := store.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestDocumentStore_PutRequiresID(t *testing.T) {
	store := memory.NewDocumentStore()
	err := store.Put(context.Background(), domain.UserRecord{})
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestDocumentStore_CloseRemovesSubscriber(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()

	a, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	b, err := store.Subscribe(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, store.TotalSubscribers())

	require.NoError(t, a.Close())
	assert.Equal(t, 0, store.Subscribers("u1"))
	assert.Equal(t, 1, store.TotalSubscribers())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, store.TotalSubscribers())
}
