package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Width 0 keeps glamour's default word wrap.
func NewRenderer(width int) (func(string) (string, error), error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	return r.Render, nil
}

// UserMarkdown describes a cached user as a markdown card.
func UserMarkdown(state domain.CachedUser) string {
	var b strings.Builder
	if state.User == nil {
		b.WriteString("# Signed out\n\n")
		if state.IsLoading {
			b.WriteString("_Waiting for the session to resolve..._\n")
		}
		return b.String()
	}

	u := state.User
	name := u.FullName()
	if name == "" {
		name = u.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	if state.IsLoading {
		b.WriteString("_Refreshing..._\n\n")
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, v)
		}
	}
	row("ID", u.ID)
	row("Email", u.Email)
	row("Phone", u.Phone)
	row("Role", u.Role)
	if u.EmailVerified {
		row("Verified", "yes")
	}
	row("Updated", formatMillis(u.UpdatedAt))
	return b.String()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
