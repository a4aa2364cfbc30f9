package memory

import (
	"context"
	"sync"

	"github.com/aretw0/rentsync/pkg/domain"
)

// Cache implements ports.UserCache in memory.
// Safe for concurrent use.
type Cache struct {
	data map[string]domain.UserRecord
	mu   sync.RWMutex
}

// NewCache creates a new in-memory user cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]domain.UserRecord),
	}
}

// Save stores a copy of user under key.
func (c *Cache) Save(ctx context.Context, key string, user *domain.UserRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = *user
	return nil
}

// Load returns a copy so callers can't mutate the slot by pointer.
func (c *Cache) Load(ctx context.Context, key string) (*domain.UserRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	user, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return &user, nil
}

// Delete empties the slot.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
