package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Cache implements ports.UserCache using Redis.
type Cache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// WithTTL sets the expiration of cached users. Documents never expire.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithLogger configures a logger for the document store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(prefix string, opts []Option) options {
	o := options{prefix: prefix, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient creates a go-redis client for address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewCache creates a Redis user cache from an existing client.
func NewCache(client *backend.Client, opts ...Option) *Cache {
	o := buildOptions("rentsync:cache:", opts)
	return &Cache{
		client: client,
		prefix: o.prefix,
		ttl:    o.ttl,
	}
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Save persists user under key.
func (c *Cache) Save(ctx context.Context, key string, user *domain.UserRecord) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal cached user: %w", err)
	}

	// Use 0 for no expiration if ttl is not set.
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the cached user stored under key.
func (c *Cache) Load(ctx context.Context, key string) (*domain.UserRecord, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var user domain.UserRecord
	if err := json.Unmarshal(val, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}
	return &user, nil
}

// Delete empties the slot.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close closes the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
