package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/rentsync/pkg/domain"
)

// Cache implements ports.UserCache using the local filesystem.
// Each key is one JSON file in BasePath, so the cached user survives restarts.
type Cache struct {
	BasePath string
}

// New creates a new Cache with the given base path.
// If basePath is empty, it defaults to ".rentsync/cache".
func New(basePath string) *Cache {
	if basePath == "" {
		basePath = filepath.Join(".rentsync", "cache")
	}
	return &Cache{BasePath: basePath}
}

// Path returns the file backing key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.BasePath, fileName(key)+".json")
}

// fileName maps a cache key onto a portable file name (no ':' on Windows).
func fileName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
}

// Save persists user to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (c *Cache) Save(ctx context.Context, key string, user *domain.UserRecord) error {
	if key == "" {
		return fmt.Errorf("cache key cannot be empty")
	}

	if err := os.MkdirAll(c.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure cache directory: %w", err)
	}

	destPath := c.Path(key)

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cached user: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(c.BasePath, "tmp-"+fileName(key)+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // No-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename replaces destPath atomically, so a crash leaves the old or the new user.
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into cache: %w", err)
	}
	return nil
}

// Load reads the cached user stored under key.
func (c *Cache) Load(ctx context.Context, key string) (*domain.UserRecord, error) {
	if key == "" {
		return nil, fmt.Errorf("cache key cannot be empty")
	}

	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var user domain.UserRecord
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}
	return &user, nil
}

// Delete removes the cache file. A missing file is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("cache key cannot be empty")
	}

	err := os.Remove(c.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}
