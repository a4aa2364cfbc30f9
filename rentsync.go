package rentsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/rentsync/internal/logging"
	loamAdapter "github.com/aretw0/rentsync/pkg/adapters/loam"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/aretw0/rentsync/pkg/session"
)

// ErrReadOnly is returned by Put and Delete when the document source cannot be written.
var ErrReadOnly = errors.New("document source is read-only")

// Client is the high-level entry point for the library.
// It wires a Reconciler to a document source and, when possible, a Writer.
type Client struct {
	reconciler  *session.Reconciler
	writer      *session.Writer
	source      ports.DocumentSource
	cache       ports.UserCache
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	locker      ports.DistributedLocker
	sessionOpts []session.Option
	Name        string
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithDocumentSource injects a custom source, bypassing the default Loam store.
// If source also implements ports.DocumentWriter, Put and Delete are enabled.
func WithDocumentSource(source ports.DocumentSource) Option {
	return func(c *Client) {
		c.source = source
	}
}

// WithCache persists the cached user through cache.
func WithCache(cache ports.UserCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLocker serialises writes per subject through locker.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *Client) {
		c.locker = locker
	}
}

// WithSessionOptions forwards extra options to the underlying Reconciler.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Client) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// New initializes a Client.
// By default documents live in a Loam repository at repoPath.
// If WithDocumentSource is provided, repoPath can be empty and Loam is skipped.
func New(repoPath string, opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	if c.source == nil {
		if repoPath == "" {
			return nil, fmt.Errorf("repoPath is required when no document source is provided")
		}
		absPath, err := filepath.Abs(repoPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		c.Name = filepath.Base(absPath)

		store, err := loamAdapter.Open(absPath, loamAdapter.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.source = store
	} else if repoPath != "" {
		c.Name = filepath.Base(repoPath)
	}

	if c.Name != "" {
		c.logger = c.logger.With("store", c.Name)
	}

	sessionOpts := []session.Option{
		session.WithLogger(c.logger),
		session.WithLifecycleHooks(c.hooks),
	}
	if c.cache != nil {
		sessionOpts = append(sessionOpts, session.WithCache(c.cache))
	}
	sessionOpts = append(sessionOpts, c.sessionOpts...)
	c.reconciler = session.NewReconciler(c.source, sessionOpts...)

	if dst, ok := c.source.(ports.DocumentWriter); ok {
		writerOpts := []session.WriterOption{session.WithWriterLogger(c.logger)}
		if c.locker != nil {
			writerOpts = append(writerOpts, session.WithLocker(c.locker, 0))
		}
		c.writer = session.NewWriter(c.source, dst, writerOpts...)
	}

	return c, nil
}

// Restore loads the persisted cached user so the UI can render before the network answers.
// Call it before Run; after the first identity transition it does nothing.
func (c *Client) Restore(ctx context.Context) error {
	return c.reconciler.Restore(ctx)
}

// Run drives the Client from identities until ctx is done.
func (c *Client) Run(ctx context.Context, identities ports.IdentitySource) error {
	return c.reconciler.Run(ctx, identities)
}

// Update feeds a single identity transition.
func (c *Client) Update(ctx context.Context, id domain.Identity) {
	c.reconciler.Update(ctx, id)
}

// State returns the cached user and loading flag.
func (c *Client) State() domain.CachedUser {
	return c.reconciler.State()
}

// IsAuthenticated reports whether the session is authenticated and a user is cached.
func (c *Client) IsAuthenticated() bool {
	return c.reconciler.IsAuthenticated()
}

// Put writes a new revision of user, stamping UpdatedAt.
func (c *Client) Put(ctx context.Context, user domain.UserRecord) (domain.UserRecord, error) {
	if c.writer == nil {
		return domain.UserRecord{}, ErrReadOnly
	}
	return c.writer.Put(ctx, user)
}

// Delete removes the document for subjectID.
func (c *Client) Delete(ctx context.Context, subjectID string) error {
	if c.writer == nil {
		return ErrReadOnly
	}
	return c.writer.Delete(ctx, subjectID)
}

// Reconciler returns the underlying Reconciler.
func (c *Client) Reconciler() *session.Reconciler {
	return c.reconciler
}

// Source returns the document source used by the Client.
func (c *Client) Source() ports.DocumentSource {
	return c.source
}

// Close tears the Client down.
func (c *Client) Close() error {
	return c.reconciler.Close()
}
