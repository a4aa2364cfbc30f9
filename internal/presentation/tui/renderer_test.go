package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMarkdown(t *testing.T) {
	md := UserMarkdown(domain.CachedUser{User: &domain.UserRecord{
		ID:        "u1",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Role:      "admin",
		UpdatedAt: 1700000000000,
	}})

	assert.Contains(t, md, "# Ada Lovelace")
	assert.Contains(t, md, "| Email | ada@example.com |")
	assert.Contains(t, md, "| Updated | 2023-11-14T22:13:20Z |")
	assert.NotContains(t, md, "Phone")
	assert.NotContains(t, md, "Refreshing")
}

func TestUserMarkdown_SignedOut(t *testing.T) {
	assert.Contains(t, UserMarkdown(domain.CachedUser{IsLoading: true}), "Waiting")
	assert.NotContains(t, UserMarkdown(domain.CachedUser{}), "Waiting")
}

func TestUserMarkdown_FallsBackToID(t *testing.T) {
	md := UserMarkdown(domain.CachedUser{User: &domain.UserRecord{ID: "u1"}, IsLoading: true})
	assert.Contains(t, md, "# u1")
	assert.Contains(t, md, "Refreshing")
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer(60)
	require.NoError(t, err)

	out, err := render("# Hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
