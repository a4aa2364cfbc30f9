package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
)

// Mask replaces redacted string fields.
const Mask = "***"

type piiMiddleware struct {
	next     ports.UserCache
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the fields whose JSON
// names match any of the patterns before they reach the cache.
// String fields become Mask; other fields are zeroed. The id and updatedAt
// fields are never redacted.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.UserCache) ports.UserCache {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, key string, user *domain.UserRecord) error {
	if user == nil || len(m.patterns) == 0 {
		return m.next.Save(ctx, key, user)
	}

	masked, err := m.mask(*user)
	if err != nil {
		return err
	}
	return m.next.Save(ctx, key, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, key string) (*domain.UserRecord, error) {
	return m.next.Load(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

// mask works on a copy; the caller's record is left untouched.
func (m *piiMiddleware) mask(user domain.UserRecord) (*domain.UserRecord, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cached user: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}

	maskMap(fields, m.patterns)

	raw, err = json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal masked user: %w", err)
	}
	var out domain.UserRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal masked user: %w", err)
	}
	return &out, nil
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if k == "id" || k == "updatedAt" {
			continue
		}
		for _, p := range patterns {
			if !p.MatchString(k) {
				continue
			}
			if _, ok := v.(string); ok {
				m[k] = Mask
			} else {
				delete(m, k)
			}
			break
		}
	}
}
