package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUserCacheContract runs a suite of tests to verify that a UserCache implementation
// adheres to the defined interface contract.
func RunUserCacheContract(t *testing.T, cache UserCache) {
	ctx := context.Background()
	key := "contract-test-user-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		user := &domain.UserRecord{
			ID:        "u1",
			FirstName: "Ada",
			Email:     "ada@example.com",
			Role:      domain.RoleAdmin,
			UpdatedAt: 1_700_000_000_123,
		}

		err := cache.Save(ctx, key, user)
		require.NoError(t, err, "Save should not return error")

		loaded, err := cache.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, *user, *loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, cache.Save(ctx, key, &domain.UserRecord{ID: "u1", UpdatedAt: 1}))
		require.NoError(t, cache.Save(ctx, key, &domain.UserRecord{ID: "u2", UpdatedAt: 2}))

		loaded, err := cache.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "u2", loaded.ID)
		assert.Equal(t, int64(2), loaded.UpdatedAt)
	})

	t.Run("Load Empty", func(t *testing.T) {
		_, err := cache.Load(ctx, "empty-"+key)
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, cache.Save(ctx, key, &domain.UserRecord{ID: "u1"}))

		err := cache.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, err = cache.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrCacheMiss, "Load after Delete should return ErrCacheMiss")

		assert.NoError(t, cache.Delete(ctx, key), "Deleting an empty slot should not fail")
	})
}

// DocumentStore is a source that can also be written, as required by the feed contract.
type DocumentStore interface {
	DocumentSource
	DocumentWriter
}

// RunDocumentStoreContract verifies subscription and fetch semantics of a document backend.
// Subscriptions must deliver the current document first, then every change.
func RunDocumentStoreContract(t *testing.T, store DocumentStore) {
	ctx := context.Background()
	subject := fmt.Sprintf("contract-subject-%d", time.Now().UnixNano())

	t.Run("Fetch Missing", func(t *testing.T) {
		snap, err := store.Fetch(ctx, "missing-"+subject)
		require.NoError(t, err)
		assert.False(t, snap.Exists)
	})

	t.Run("Subscribe Lifecycle", func(t *testing.T) {
		sub, err := store.Subscribe(ctx, subject)
		require.NoError(t, err)
		defer sub.Close()

		first := nextEvent(t, sub)
		require.NoError(t, first.Err)
		assert.False(t, first.Snapshot.Exists, "initial snapshot of an absent document")

		user := domain.UserRecord{ID: subject, Email: "contract@example.com", UpdatedAt: 100}
		require.NoError(t, store.Put(ctx, user))

		put := nextEvent(t, sub)
		require.NoError(t, put.Err)
		require.True(t, put.Snapshot.Exists)
		assert.Equal(t, subject, put.Snapshot.User.ID)
		assert.Equal(t, "contract@example.com", put.Snapshot.User.Email)

		fetched, err := store.Fetch(ctx, subject)
		require.NoError(t, err)
		require.True(t, fetched.Exists)
		assert.Equal(t, put.Snapshot.User, fetched.User)

		require.NoError(t, store.Delete(ctx, subject))
		deleted := nextEvent(t, sub)
		require.NoError(t, deleted.Err)
		assert.False(t, deleted.Snapshot.Exists)
	})

	t.Run("Delete Missing", func(t *testing.T) {
		err := store.Delete(ctx, "missing-"+subject)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("Close Is Idempotent", func(t *testing.T) {
		sub, err := store.Subscribe(ctx, subject)
		require.NoError(t, err)
		_ = nextEvent(t, sub)

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())

		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("events channel not closed after Close")
			}
		}
	})
}

func nextEvent(t *testing.T, sub Subscription) domain.FeedEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}
	return domain.FeedEvent{}
}
