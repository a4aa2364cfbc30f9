package ports

import (
	"context"

	"github.com/aretw0/rentsync/pkg/domain"
)

// UserCache persists the cached user so it survives restarts.
type UserCache interface {
	// Save overwrites the slot stored under key.
	Save(ctx context.Context, key string, user *domain.UserRecord) error

	// Load retrieves the slot stored under key.
	// Returns domain.ErrCacheMiss if the slot is empty.
	Load(ctx context.Context, key string) (*domain.UserRecord, error)

	// Delete empties the slot. Deleting an empty slot is not an error.
	Delete(ctx context.Context, key string) error
}
