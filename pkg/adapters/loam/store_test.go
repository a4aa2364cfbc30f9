package loam_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aretw0/rentsync/internal/testutils"
	"github.com/aretw0/rentsync/pkg/adapters/loam"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (string, *loam.DocumentStore) {
	t.Helper()
	dir, repo := testutils.SetupTestRepo(t)
	return dir, loam.New(repo, dir)
}

func TestLoamDocuments_Contract(t *testing.T) {
	_, store := newStore(t)
	ports.RunDocumentStoreContract(t, store)
}

func TestLoamDocuments_FetchHandWrittenFile(t *testing.T) {
	dir, store := newStore(t)

	testutils.WriteUserFile(t, dir, "u1", `firstName: Ada
lastName: Lovelace
email: ada@example.com
role: admin
updatedAt: 1709294400000`, "Ada Lovelace")

	snap, err := store.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, snap.Exists)

	assert.Equal(t, "u1", snap.User.ID, "id is implied from the file name")
	assert.Equal(t, "Ada Lovelace", snap.User.FullName())
	assert.True(t, snap.User.IsAdmin())
	assert.Equal(t, int64(1709294400000), snap.User.UpdatedAt)
}

func TestLoamDocuments_PutWritesFrontmatter(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	user := domain.UserRecord{ID: "u1", FirstName: "Grace", LastName: "Hopper", Phone: "555-0100", UpdatedAt: 42}
	require.NoError(t, store.Put(ctx, user))

	raw, err := os.ReadFile(store.Path("u1"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "firstName: Grace")
	assert.Contains(t, string(raw), "Grace Hopper")

	snap, err := store.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user, snap.User)
}

func TestLoamDocuments_RejectsPathTraversal(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "nested/u1", `win\u1`} {
		assert.ErrorIs(t, store.Put(ctx, domain.UserRecord{ID: id}), domain.ErrInvalidDocument, "id %q", id)
		_, err := store.Fetch(ctx, id)
		assert.ErrorIs(t, err, domain.ErrInvalidDocument, "id %q", id)
	}
}

func TestLoamDocuments_ExternalEditReachesSubscriber(t *testing.T) {
	dir, store := newStore(t)

	sub, err := store.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Close()

	first := <-sub.Events()
	require.False(t, first.Snapshot.Exists)

	testutils.WriteUserFile(t, dir, "u1", "id: u1\nemail: edited@example.com\nupdatedAt: 5", "")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok)
			require.NoError(t, ev.Err)
			if ev.Snapshot.Exists && ev.Snapshot.User.Email == "edited@example.com" {
				return
			}
		case <-deadline:
			t.Fatal("external edit never reached the subscriber")
		}
	}
}

func TestLoamDocuments_DeduplicatesOwnWrites(t *testing.T) {
	_, store := newStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()
	<-sub.Events()

	require.NoError(t, store.Put(ctx, domain.UserRecord{ID: "u1", UpdatedAt: 1}))

	ev := <-sub.Events()
	require.True(t, ev.Snapshot.Exists)

	// The watcher echo of the same write must not produce a second event.
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected duplicate event: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}
