package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/rentsync/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)

	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "u1", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	assert.True(t, mr.Exists("test:lock:u1"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:u1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := setup(t)

	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond, "Should block until timeout")

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)

	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "u1", time.Second)
	require.NoError(t, err)

	// The first owner's lease expires and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	unlock2, err := locker.Lock(ctx, "u1", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists("test:lock:u1"), "stale owner must not release the new lease")

	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("test:lock:u1"))
}
