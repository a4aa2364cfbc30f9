package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// Document writers use it so that concurrent Put calls for one subject cannot
// interleave their read-stamp-write of UpdatedAt.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is canceled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
