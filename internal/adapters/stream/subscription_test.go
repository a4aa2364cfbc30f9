package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_EmitAndFinish(t *testing.T) {
	sub := New(nil)
	ctx := context.Background()

	go func() {
		defer sub.Finish()
		sub.Emit(ctx, domain.FeedEvent{Snapshot: domain.Found(domain.UserRecord{ID: "u1"})})
		sub.Fail(ctx, errors.New("reset"))
	}()

	first := <-sub.Events()
	assert.True(t, first.Snapshot.Exists)

	second := <-sub.Events()
	assert.EqualError(t, second.Err, "reset")

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSubscription_CloseUnblocksProducer(t *testing.T) {
	calls := 0
	sub := New(func() error {
		calls++
		return nil
	})

	exited := make(chan bool, 1)
	go func() {
		defer sub.Finish()
		// Nobody reads; Emit must give up once Close is called.
		exited <- sub.Emit(context.Background(), domain.FeedEvent{})
	}()

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 1, calls)

	select {
	case delivered := <-exited:
		assert.False(t, delivered)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after Close")
	}
}

func TestSubscription_FailAfterCloseIsSilent(t *testing.T) {
	sub := New(nil)
	require.NoError(t, sub.Close())

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Finish()
		sub.Fail(context.Background(), errors.New("use of closed connection"))
	}()

	<-done
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSubscription_CloseError(t *testing.T) {
	sub := New(func() error { return errors.New("close failed") })
	assert.EqualError(t, sub.Close(), "close failed")
	assert.EqualError(t, sub.Close(), "close failed")
}
