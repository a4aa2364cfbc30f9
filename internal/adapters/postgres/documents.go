// Package postgres stores user documents in a jsonb table and streams changes
// to subscribers through LISTEN/NOTIFY.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/rentsync/internal/adapters/stream"
	"github.com/aretw0/rentsync/internal/dto"
	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultChannel is the notification channel shared by all documents.
const DefaultChannel = "rentsync_users"

// Schema creates the documents table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         text PRIMARY KEY,
	doc        jsonb NOT NULL,
	updated_at bigint NOT NULL DEFAULT 0
)`

// notification is the NOTIFY payload. It names the changed document only;
// Postgres caps payloads at 8000 bytes, so subscribers fetch the body.
type notification struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// DocumentStore implements ports.DocumentSource and ports.DocumentWriter on Postgres.
type DocumentStore struct {
	pool    *pgxpool.Pool
	channel string
	logger  *slog.Logger
}

type Option func(*DocumentStore)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) Option {
	return func(s *DocumentStore) {
		s.channel = channel
	}
}

// WithLogger configures a logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DocumentStore) {
		s.logger = logger
	}
}

// NewPool configures and returns a PostgreSQL connection pool.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewDocumentStore creates a store on an existing pool.
func NewDocumentStore(pool *pgxpool.Pool, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		pool:    pool,
		channel: DefaultChannel,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies Schema.
func (s *DocumentStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate users table: %w", err)
	}
	return nil
}

// Fetch reads the current document once.
func (s *DocumentStore) Fetch(ctx context.Context, subjectID string) (domain.Snapshot, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1`, subjectID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Missing(), nil
		}
		return domain.Snapshot{}, fmt.Errorf("fetch user %s: %w", subjectID, err)
	}

	user, err := dto.UnmarshalUser(raw)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Found(user), nil
}

// Put upserts the document and notifies listeners in the same transaction.
func (s *DocumentStore) Put(ctx context.Context, user domain.UserRecord) error {
	if user.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	payload, err := json.Marshal(notification{ID: user.ID, UpdatedAt: user.UpdatedAt})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, doc, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				doc = EXCLUDED.doc,
				updated_at = EXCLUDED.updated_at
		`, user.ID, doc, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", user.ID, err)
		}
		return s.notify(ctx, tx, payload)
	})
}

// Delete removes the document and notifies listeners in the same transaction.
func (s *DocumentStore) Delete(ctx context.Context, subjectID string) error {
	payload, err := json.Marshal(notification{ID: subjectID, Deleted: true})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, subjectID)
		if err != nil {
			return fmt.Errorf("delete user %s: %w", subjectID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDocumentNotFound
		}
		return s.notify(ctx, tx, payload)
	})
}

func (s *DocumentStore) notify(ctx context.Context, tx pgx.Tx, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", s.channel, err)
	}
	return nil
}

// Subscribe dedicates one connection to LISTEN, then delivers the current
// document followed by a fresh read for every notification about subjectID.
// The connection never returns to the pool.
func (s *DocumentStore) Subscribe(ctx context.Context, subjectID string) (ports.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	listener := conn.Hijack()
	if _, err := listener.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		_ = listener.Close(context.Background())
		return nil, fmt.Errorf("listen on %s: %w", s.channel, err)
	}

	initial, err := s.Fetch(ctx, subjectID)
	if err != nil {
		_ = listener.Close(context.Background())
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := stream.New(func() error {
		cancel()
		return nil
	})

	go func() {
		defer cancel()
		defer func() { _ = listener.Close(context.Background()) }()
		s.pump(listenCtx, sub, listener, subjectID, initial)
	}()

	return sub, nil
}

func (s *DocumentStore) pump(ctx context.Context, sub *stream.Subscription, conn *pgx.Conn, subjectID string, initial domain.Snapshot) {
	defer sub.Finish()

	if !sub.Emit(ctx, domain.FeedEvent{Snapshot: initial}) {
		return
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			sub.Fail(ctx, fmt.Errorf("postgres listener lost: %w", err))
			return
		}

		note, err := decodeNotification(n.Payload)
		if err != nil {
			s.logger.Warn("Malformed notification", "channel", n.Channel, "err", err)
			sub.Fail(ctx, err)
			return
		}
		if note.ID != subjectID {
			continue
		}

		snap := domain.Missing()
		if !note.Deleted {
			snap, err = s.Fetch(ctx, subjectID)
			if err != nil {
				sub.Fail(ctx, fmt.Errorf("fetch after notification: %w", err))
				return
			}
		}
		if !sub.Emit(ctx, domain.FeedEvent{Snapshot: snap}) {
			return
		}
	}
}

func decodeNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return notification{}, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if n.ID == "" {
		return notification{}, fmt.Errorf("%w: notification without id", domain.ErrInvalidDocument)
	}
	return n, nil
}
