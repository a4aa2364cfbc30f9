package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/rentsync"
	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/internal/presentation/tui"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/observability"
	"github.com/aretw0/rentsync/pkg/session"
)

// WatchOptions configures RunWatch.
type WatchOptions struct {
	Config    config.Config
	SubjectID string
	Out       io.Writer
	// JSON forces one JSON object per line even on a terminal.
	JSON bool
}

// RunWatch signs subject in locally and prints the cached user every time it changes,
// until ctx is done.
func RunWatch(ctx context.Context, opts WatchOptions) error {
	if opts.SubjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	logger := createLogger(opts.Config)

	stack, err := Build(ctx, opts.Config, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	printState, err := newStatePrinter(opts.Out, opts.JSON)
	if err != nil {
		return err
	}
	if !opts.JSON && isTerminal(opts.Out) {
		tui.PrintBanner(opts.Out, rentsync.Version)
		printSystemMessage(opts.Out, "Watching '%s' on the %s feed.", opts.SubjectID, opts.Config.Feed.Backend)
	}

	// Hooks run under the reconciler's event lock; printing happens here instead.
	changes := make(chan domain.CachedUser, 16)
	hooks := observability.LogHooks(logger).Merge(domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, state domain.CachedUser) {
			select {
			case changes <- state:
			default:
				logger.Warn("watch: dropping state change, printer is behind")
			}
		},
	})

	sessionOpts := append(stack.SessionOptions(), session.WithLifecycleHooks(hooks))
	reconciler := session.NewReconciler(stack.Source, sessionOpts...)
	defer reconciler.Close()

	if err := reconciler.Restore(ctx); err != nil {
		logger.Warn("failed to restore cached user", "error", err)
	}
	if err := printState(reconciler.State()); err != nil {
		return err
	}
	reconciler.Update(ctx, domain.Authenticated(opts.SubjectID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-changes:
			if err := printState(state); err != nil {
				return err
			}
		}
	}
}

// newStatePrinter renders markdown cards on a terminal and JSON lines otherwise.
func newStatePrinter(w io.Writer, forceJSON bool) (func(domain.CachedUser) error, error) {
	if forceJSON || !isTerminal(w) {
		enc := json.NewEncoder(w)
		return func(state domain.CachedUser) error {
			return enc.Encode(state)
		}, nil
	}

	render, err := tui.NewRenderer(terminalWidth(w))
	if err != nil {
		return nil, err
	}
	return func(state domain.CachedUser) error {
		out, err := render(tui.UserMarkdown(state))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}, nil
}
