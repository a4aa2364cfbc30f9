// Package loam is a file-backed user document store for local development.
// Each user is a markdown file with the profile in its frontmatter, so
// documents can be edited by hand while a session is live.
package loam

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/aretw0/rentsync/internal/adapters/stream"
	"github.com/aretw0/rentsync/internal/dto"
	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"gopkg.in/yaml.v3"
)

const ext = ".md"

// DocumentStore implements ports.DocumentSource and ports.DocumentWriter on a Loam repository.
type DocumentStore struct {
	repo   core.Repository
	typed  *loam.TypedRepository[dto.UserDocument]
	root   string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type Option func(*DocumentStore)

// WithLogger configures a logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DocumentStore) {
		s.logger = logger
	}
}

// Open initializes a Loam repository at path and wraps it.
func Open(path string, opts ...Option) (*DocumentStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}

	repo, err := loam.Init(absPath, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(repo, absPath, opts...), nil
}

// New wraps an initialized repository rooted at root.
func New(repo core.Repository, root string, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		repo:   repo,
		typed:  loam.NewTypedRepository[dto.UserDocument](repo),
		root:   root,
		logger: logging.NewNop(),
		subs:   make(map[string]map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file holding subjectID's document.
func (s *DocumentStore) Path(subjectID string) string {
	return filepath.Join(s.root, subjectID+ext)
}

func validSubject(subjectID string) error {
	if subjectID == "" || strings.ContainsAny(subjectID, `/\`) || strings.Contains(subjectID, "..") {
		return fmt.Errorf("%w: invalid id %q", domain.ErrInvalidDocument, subjectID)
	}
	return nil
}

// Fetch reads the current document once.
func (s *DocumentStore) Fetch(ctx context.Context, subjectID string) (domain.Snapshot, error) {
	if err := validSubject(subjectID); err != nil {
		return domain.Snapshot{}, err
	}

	if _, err := os.Stat(s.Path(subjectID)); err != nil {
		if os.IsNotExist(err) {
			return domain.Missing(), nil
		}
		return domain.Snapshot{}, fmt.Errorf("failed to stat %s: %w", subjectID, err)
	}

	doc, err := s.repo.Get(ctx, subjectID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("loam get failed for %s: %w", subjectID, err)
	}

	user, err := dto.DecodeUser(doc.Metadata)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if user.ID == "" {
		user.ID = subjectID
	}
	return domain.Found(user), nil
}

// Put writes the document atomically and wakes local subscribers.
// Edits made by other processes reach subscribers through the file watcher.
func (s *DocumentStore) Put(ctx context.Context, user domain.UserRecord) error {
	if err := validSubject(user.ID); err != nil {
		return err
	}

	content, err := render(user)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.root, s.Path(user.ID), content); err != nil {
		return err
	}

	s.wake(user.ID)
	return nil
}

// Delete removes the document file.
func (s *DocumentStore) Delete(ctx context.Context, subjectID string) error {
	if err := validSubject(subjectID); err != nil {
		return err
	}

	if err := os.Remove(s.Path(subjectID)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", subjectID, err)
	}

	s.wake(subjectID)
	return nil
}

// render produces the markdown file: profile in frontmatter, display name as body.
func render(user domain.UserRecord) ([]byte, error) {
	meta, err := yaml.Marshal(dto.EncodeUser(user))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n")
	if name := user.FullName(); name != "" {
		buf.WriteString(name)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

func writeAtomic(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Subscribe watches the repository and delivers the current document first,
// then a fresh read every time the file changes.
func (s *DocumentStore) Subscribe(ctx context.Context, subjectID string) (ports.Subscription, error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events, err := s.typed.Watch(watchCtx, "**/*"+ext)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	initial, err := s.Fetch(ctx, subjectID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{subjectID: subjectID, wake: make(chan struct{}, 1)}
	sub.Subscription = stream.New(func() error {
		cancel()
		s.remove(sub)
		return nil
	})
	s.add(sub)

	// Pass changed IDs up the chain, respecting context cancellation.
	changed := make(chan string)
	go func() {
		defer close(changed)
		for {
			select {
			case <-watchCtx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case changed <- evt.ID:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()

	go func() {
		defer cancel()
		s.pump(watchCtx, sub, changed, initial)
	}()

	return sub, nil
}

type subscription struct {
	*stream.Subscription
	subjectID string
	wake      chan struct{}
}

func (s *DocumentStore) add(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[sub.subjectID] == nil {
		s.subs[sub.subjectID] = make(map[*subscription]struct{})
	}
	s.subs[sub.subjectID][sub] = struct{}{}
}

func (s *DocumentStore) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[sub.subjectID], sub)
	if len(s.subs[sub.subjectID]) == 0 {
		delete(s.subs, sub.subjectID)
	}
}

func (s *DocumentStore) wake(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[subjectID] {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

func (s *DocumentStore) pump(ctx context.Context, sub *subscription, changed <-chan string, initial domain.Snapshot) {
	defer sub.Finish()

	if !sub.Emit(ctx, domain.FeedEvent{Snapshot: initial}) {
		return
	}
	last := initial

	for {
		select {
		case <-ctx.Done():
			sub.Fail(ctx, fmt.Errorf("loam watcher stopped: %w", ctx.Err()))
			return
		case id, ok := <-changed:
			if !ok {
				sub.Fail(ctx, fmt.Errorf("loam watcher closed"))
				return
			}
			if trimExtension(id) != sub.subjectID {
				continue
			}
		case <-sub.wake:
		}

		snap, err := s.Fetch(ctx, sub.subjectID)
		if err != nil {
			sub.Fail(ctx, err)
			return
		}
		// Our own writes arrive twice, once from wake and once from the watcher.
		if sameSnapshot(last, snap) {
			continue
		}
		if !sub.Emit(ctx, domain.FeedEvent{Snapshot: snap}) {
			return
		}
		last = snap
	}
}

func sameSnapshot(a, b domain.Snapshot) bool {
	if a.Exists != b.Exists {
		return false
	}
	return !a.Exists || a.User == b.User
}

func trimExtension(id string) string {
	id = filepath.ToSlash(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.TrimSuffix(id, filepath.Ext(id))
}
