package ports

import (
	"context"

	"github.com/aretw0/rentsync/pkg/domain"
)

// Subscription is one live feed on a single user document.
type Subscription interface {
	// Events delivers snapshots in arrival order. The channel is closed once the
	// subscription ends, either after Close or after a terminal error event.
	Events() <-chan domain.FeedEvent

	// Close stops delivery. Calling Close more than once is a no-op.
	Close() error
}

// DocumentFeed opens live subscriptions on user documents.
type DocumentFeed interface {
	Subscribe(ctx context.Context, subjectID string) (Subscription, error)
}

// DocumentFetcher performs single-shot reads.
// A missing document is reported as a Snapshot with Exists == false, not as an error.
type DocumentFetcher interface {
	Fetch(ctx context.Context, subjectID string) (domain.Snapshot, error)
}

// DocumentSource is the remote document store as seen by the reconciler.
type DocumentSource interface {
	DocumentFeed
	DocumentFetcher
}

// DocumentWriter mutates user documents and notifies live subscriptions.
type DocumentWriter interface {
	// Put stores the full record. Implementations must notify subscribers of user.ID.
	Put(ctx context.Context, user domain.UserRecord) error

	// Delete removes the record. Returns domain.ErrDocumentNotFound if absent.
	Delete(ctx context.Context, subjectID string) error
}
