package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/pkg/domain"
)

// InspectCache prints the persisted cached user.
func InspectCache(ctx context.Context, cfg config.Config, out io.Writer, asJSON bool) error {
	stack, err := Build(ctx, cfg, createLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.Cache.Load(ctx, cfg.Cache.Key)
	if errors.Is(err, domain.ErrCacheMiss) {
		printSystemMessage(out, "Cache '%s' is empty.", cfg.Cache.Key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	return printUser(out, *user, asJSON)
}

// ClearCache empties the persisted cached user slot.
func ClearCache(ctx context.Context, cfg config.Config, out io.Writer) error {
	stack, err := Build(ctx, cfg, createLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.Cache.Delete(ctx, cfg.Cache.Key); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	printSystemMessage(out, "Cache '%s' cleared.", cfg.Cache.Key)
	return nil
}
