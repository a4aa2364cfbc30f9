package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/internal/dto"
	"github.com/aretw0/rentsync/internal/presentation/tui"
	"github.com/aretw0/rentsync/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ReadProfile decodes a YAML or JSON user profile.
// Timestamps may be unix milliseconds or RFC 3339 strings.
func ReadProfile(r io.Reader) (domain.UserRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("failed to read profile: %w", err)
	}

	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return domain.UserRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}
	if fields == nil {
		return domain.UserRecord{}, fmt.Errorf("%w: empty profile", domain.ErrInvalidDocument)
	}
	return dto.DecodeUser(fields)
}

// PutUser writes the profile read from path ("-" for stdin) as a new revision.
func PutUser(ctx context.Context, cfg config.Config, path string, out io.Writer) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	user, err := ReadProfile(r)
	if err != nil {
		return err
	}

	stack, err := Build(ctx, cfg, createLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()

	written, err := stack.NewWriter().Put(ctx, user)
	if err != nil {
		return err
	}
	printSystemMessage(out, "Stored '%s' at updatedAt %d.", written.ID, written.UpdatedAt)
	return nil
}

// RemoveUser deletes the document for subjectID.
func RemoveUser(ctx context.Context, cfg config.Config, subjectID string, out io.Writer) error {
	stack, err := Build(ctx, cfg, createLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.NewWriter().Delete(ctx, subjectID); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return fmt.Errorf("user %q not found", subjectID)
		}
		return err
	}
	printSystemMessage(out, "Removed '%s'.", subjectID)
	return nil
}

// ShowUser fetches the document for subjectID once and prints it.
func ShowUser(ctx context.Context, cfg config.Config, subjectID string, out io.Writer, asJSON bool) error {
	stack, err := Build(ctx, cfg, createLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()

	snap, err := stack.Source.Fetch(ctx, subjectID)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return fmt.Errorf("user %q not found", subjectID)
	}
	return printUser(out, snap.User, asJSON)
}

func printUser(out io.Writer, user domain.UserRecord, asJSON bool) error {
	if asJSON || !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	}
	render, err := tui.NewRenderer(terminalWidth(out))
	if err != nil {
		return err
	}
	card, err := render(tui.UserMarkdown(domain.CachedUser{User: &user}))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, card)
	return err
}
