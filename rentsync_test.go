package rentsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/rentsync"
	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresPathWithoutSource(t *testing.T) {
	_, err := rentsync.New("")
	assert.Error(t, err)
}

func TestClient_MemorySource(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	cache := memory.NewCache()

	client, err := rentsync.New("", rentsync.WithDocumentSource(docs), rentsync.WithCache(cache))
	require.NoError(t, err)
	defer client.Close()

	written, err := client.Put(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, written.UpdatedAt)

	client.Update(ctx, domain.Authenticated("u1"))
	require.Eventually(t, func() bool {
		u := client.State().User
		return u != nil && u.Email == "a@example.com"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, client.IsAuthenticated())

	require.NoError(t, client.Delete(ctx, "u1"))
	require.Eventually(t, func() bool { return client.State().User == nil }, 2*time.Second, 10*time.Millisecond)
}

type readOnlySource struct {
	ports.DocumentSource
}

func TestClient_ReadOnlySource(t *testing.T) {
	client, err := rentsync.New("", rentsync.WithDocumentSource(readOnlySource{memory.NewDocumentStore()}))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Put(context.Background(), domain.UserRecord{ID: "u1"})
	assert.ErrorIs(t, err, rentsync.ErrReadOnly)
	assert.ErrorIs(t, client.Delete(context.Background(), "u1"), rentsync.ErrReadOnly)
}

func TestClient_DefaultLoamStore(t *testing.T) {
	ctx := context.Background()
	client, err := rentsync.New(t.TempDir())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Put(ctx, domain.UserRecord{ID: "u1", FirstName: "Ada"})
	require.NoError(t, err)

	snap, err := client.Source().Fetch(ctx, "u1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "Ada", snap.User.FirstName)
}
