package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/rentsync/internal/adapters/file"
	"github.com/aretw0/rentsync/internal/adapters/postgres"
	"github.com/aretw0/rentsync/internal/adapters/redis"
	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/pkg/adapters/loam"
	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/persistence/middleware"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/aretw0/rentsync/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

// Stack holds the adapters selected by a Config.
type Stack struct {
	Source ports.DocumentSource
	Writer ports.DocumentWriter
	Cache  ports.UserCache
	Locker ports.DistributedLocker

	cfg     config.Config
	logger  *slog.Logger
	closers []func() error
}

// Build connects every backend cfg names. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stack, error) {
	s := &Stack{cfg: cfg, logger: logger}

	var client *backend.Client
	if cfg.UsesRedis() {
		client = redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	if err := s.buildFeed(ctx, client); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.buildCache(client); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) buildFeed(ctx context.Context, client *backend.Client) error {
	cfg := s.cfg
	switch cfg.Feed.Backend {
	case config.BackendMemory:
		store := memory.NewDocumentStore()
		s.Source, s.Writer = store, store

	case config.BackendRedis:
		opts := []redis.Option{redis.WithLogger(s.logger)}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		store := redis.NewDocumentStore(client, opts...)
		s.Source, s.Writer = store, store
		lockPrefix := cfg.Redis.Prefix
		if lockPrefix == "" {
			lockPrefix = "rentsync:"
		}
		s.Locker = redis.NewLocker(client, lockPrefix)

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })

		opts := []postgres.Option{postgres.WithLogger(s.logger)}
		if cfg.Postgres.Channel != "" {
			opts = append(opts, postgres.WithChannel(cfg.Postgres.Channel))
		}
		store := postgres.NewDocumentStore(pool, opts...)
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		s.Source, s.Writer = store, store

	case config.BackendLoam:
		store, err := loam.Open(cfg.Loam.Path, loam.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.Source, s.Writer = store, store

	default:
		return fmt.Errorf("unknown feed backend %q", cfg.Feed.Backend)
	}
	return nil
}

func (s *Stack) buildCache(client *backend.Client) error {
	cfg := s.cfg
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		s.Cache = memory.NewCache()
	case config.BackendFile:
		s.Cache = file.New(cfg.Cache.Path)
	case config.BackendRedis:
		opts := []redis.Option{redis.WithTTL(cfg.Cache.TTL)}
		if cfg.Cache.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Cache.Prefix))
		}
		s.Cache = redis.NewCache(client, opts...)
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	var mws []middleware.Middleware
	if len(cfg.Cache.Redact) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Cache.Redact))
	}
	active, fallback, err := cfg.Cache.Keys()
	if err != nil {
		return err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	s.Cache = middleware.Chain(s.Cache, mws...)
	return nil
}

// SessionOptions returns the Reconciler options implied by the config.
func (s *Stack) SessionOptions() []session.Option {
	return []session.Option{
		session.WithCache(s.Cache),
		session.WithCacheKey(s.cfg.Cache.Key),
		session.WithLogger(s.logger),
		session.WithFetchTimeout(s.cfg.Feed.FetchTimeout),
	}
}

// NewWriter returns a Writer over the stack's document store.
func (s *Stack) NewWriter() *session.Writer {
	opts := []session.WriterOption{session.WithWriterLogger(s.logger)}
	if s.Locker != nil {
		opts = append(opts, session.WithLocker(s.Locker, s.cfg.Feed.LockTTL))
	}
	return session.NewWriter(s.Source, s.Writer, opts...)
}

// Close releases backends in reverse order of acquisition.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
