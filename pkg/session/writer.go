package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
)

const defaultLockTTL = 5 * time.Second

// Writer publishes user documents for seeding and admin tools.
// Every Put stamps UpdatedAt so that revisions of one document strictly increase,
// which is what the Reconciler's watermark relies on.
type Writer struct {
	source  ports.DocumentFetcher
	dst     ports.DocumentWriter
	locker  ports.DistributedLocker
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// WriterOption configures the Writer.
type WriterOption func(*Writer)

// WithLocker serialises writers of the same subject across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) WriterOption {
	return func(w *Writer) {
		w.locker = locker
		if ttl > 0 {
			w.lockTTL = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// WithWriterLogger configures a logger for the Writer.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter creates a Writer that reads the previous revision from source
// and writes through dst.
func NewWriter(source ports.DocumentFetcher, dst ports.DocumentWriter, opts ...WriterOption) *Writer {
	w := &Writer{
		source:  source,
		dst:     dst,
		lockTTL: defaultLockTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Put stamps user.UpdatedAt past the stored revision and writes the document.
// An explicit UpdatedAt ahead of both the clock and the stored revision is kept.
// It returns the record as written.
func (w *Writer) Put(ctx context.Context, user domain.UserRecord) (domain.UserRecord, error) {
	if user.ID == "" {
		return domain.UserRecord{}, fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}

	unlock, err := w.lock(ctx, user.ID)
	if err != nil {
		return domain.UserRecord{}, err
	}
	defer unlock()

	prev, err := w.source.Fetch(ctx, user.ID)
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("failed to read current revision of %s: %w", user.ID, err)
	}

	var previous int64
	if prev.Exists {
		previous = prev.User.UpdatedAt
		if user.CreatedAt == 0 {
			user.CreatedAt = prev.User.CreatedAt
		}
	}
	user.UpdatedAt = domain.NextUpdatedAt(max(previous, user.UpdatedAt-1), w.now())
	if user.CreatedAt == 0 {
		user.CreatedAt = user.UpdatedAt
	}

	if err := w.dst.Put(ctx, user); err != nil {
		return domain.UserRecord{}, fmt.Errorf("failed to write %s: %w", user.ID, err)
	}

	w.logger.Info("User document written", "subject_id", user.ID, "updated_at", user.UpdatedAt)
	return user, nil
}

// Delete removes the document for subjectID.
func (w *Writer) Delete(ctx context.Context, subjectID string) error {
	unlock, err := w.lock(ctx, subjectID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := w.dst.Delete(ctx, subjectID); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete %s: %w", subjectID, err)
	}

	w.logger.Info("User document deleted", "subject_id", subjectID)
	return nil
}

func (w *Writer) lock(ctx context.Context, subjectID string) (func(), error) {
	if w.locker == nil {
		return func() {}, nil
	}

	unlock, err := w.locker.Lock(ctx, "user:"+subjectID, w.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", subjectID, err)
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("Failed to release writer lock", "subject_id", subjectID, "err", err)
		}
	}, nil
}
