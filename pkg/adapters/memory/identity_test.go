package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityBroadcaster_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := memory.NewIdentityBroadcaster()
	ch, err := b.Watch(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.Pending(), <-ch, "current identity is delivered first")

	b.Set(domain.Authenticated("u1"))
	select {
	case id := <-ch:
		assert.Equal(t, domain.Authenticated("u1"), id)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for identity")
	}
	assert.Equal(t, domain.Authenticated("u1"), b.Current())

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestIdentityBroadcaster_SlowWatcherSeesEveryTransition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := memory.NewIdentityBroadcaster()
	ch, err := b.Watch(ctx)
	require.NoError(t, err)
	<-ch

	want := []domain.Identity{
		domain.Authenticated("u1"),
		domain.Pending(),
		domain.Unauthenticated(),
		domain.Pending(),
		domain.Authenticated("u2"),
	}
	for _, id := range want {
		b.Set(id)
	}

	var got []domain.Identity
	for range want {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d identities", len(got))
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, domain.Authenticated("u2"), b.Current())
}
