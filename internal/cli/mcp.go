package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/pkg/adapters/mcp"
	"github.com/aretw0/rentsync/pkg/observability"
	"github.com/aretw0/rentsync/pkg/session"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// MCPOptions configures RunMCP.
type MCPOptions struct {
	Config    config.Config
	Transport string
	// In and Out carry the stdio transport.
	In  io.Reader
	Out io.Writer
	// Ready, when set, receives the bound address of the SSE listener.
	Ready chan<- string
}

// RunMCP runs the reconciler behind a Model Context Protocol server until ctx is done.
func RunMCP(ctx context.Context, opts MCPOptions) error {
	cfg := opts.Config
	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret (RENTSYNC_JWT_SECRET) is required to serve MCP")
	}
	switch opts.Transport {
	case TransportStdio, TransportSSE:
	default:
		return fmt.Errorf("unknown transport %q (want stdio or sse)", opts.Transport)
	}
	logger := createLogger(cfg)

	stack, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sessionOpts := append(stack.SessionOptions(), session.WithLifecycleHooks(observability.LogHooks(logger)))
	reconciler := session.NewReconciler(stack.Source, sessionOpts...)
	if err := reconciler.Restore(ctx); err != nil {
		logger.Warn("failed to restore cached user", "error", err)
	}
	auth := newAuthenticator(cfg)

	serverOpts := []mcp.Option{mcp.WithLogger(logger)}
	if stack.Writer != nil {
		serverOpts = append(serverOpts, mcp.WithWriter(stack.NewWriter()))
	}
	srv := mcp.NewServer(reconciler, auth, stack.Source, serverOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- reconciler.Run(runCtx, auth) }()

	var serveErr error
	if opts.Transport == TransportSSE {
		serveErr = serveMCPSSE(runCtx, srv, cfg.Listen, opts.Ready)
	} else {
		serveErr = srv.ServeStdio(runCtx, opts.In, opts.Out)
	}
	logger.Debug("mcp server stopped", "cause", shutdownCause(ctx))

	cancel()
	if err := <-runDone; err != nil {
		return err
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) && !errors.Is(serveErr, io.EOF) {
		return fmt.Errorf("mcp server error: %w", serveErr)
	}
	return nil
}

func serveMCPSSE(ctx context.Context, srv *mcp.Server, addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready <- ln.Addr().String()
	}
	return srv.ServeSSE(ctx, ln)
}
