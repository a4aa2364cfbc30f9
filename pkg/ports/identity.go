package ports

import (
	"context"

	"github.com/aretw0/rentsync/pkg/domain"
)

// IdentitySource reports identity session transitions.
type IdentitySource interface {
	// Watch returns a channel that first yields the current identity and then
	// every subsequent change. The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan domain.Identity, error)
}
