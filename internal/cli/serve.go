package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/rentsync"
	httpAdapter "github.com/aretw0/rentsync/internal/adapters/http"
	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/pkg/adapters/jwt"
	"github.com/aretw0/rentsync/pkg/observability"
	"github.com/aretw0/rentsync/pkg/session"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions configures RunServe.
type ServeOptions struct {
	Config config.Config
	Out    io.Writer
	// Ready, when set, receives the bound address once the listener is up.
	Ready chan<- string
}

// RunServe runs the reconciler as a daemon behind the HTTP session API until ctx is done.
func RunServe(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret (RENTSYNC_JWT_SECRET) is required to serve")
	}
	logger := createLogger(cfg)

	flush, err := observability.InitSentry(observability.SentryOptions{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          "rentsync@" + rentsync.Version,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	})
	if err != nil {
		logger.Error("sentry init failed", "error", err)
	}
	defer flush()

	stack, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	streams := httpAdapter.NewStreamManager()

	hooks := observability.LogHooks(logger).
		Merge(metrics.Hooks()).
		Merge(streams.Hooks())
	if cfg.Sentry.DSN != "" {
		hooks = hooks.Merge(observability.SentryHooks(sentry.CurrentHub()))
	}

	sessionOpts := append(stack.SessionOptions(), session.WithLifecycleHooks(hooks))
	reconciler := session.NewReconciler(stack.Source, sessionOpts...)
	if err := reconciler.Restore(ctx); err != nil {
		logger.Warn("failed to restore cached user", "error", err)
	}

	auth := newAuthenticator(cfg)

	handler := httpAdapter.NewHandler(reconciler, auth,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithStreams(streams),
		httpAdapter.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming clients end with the server's context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- reconciler.Run(runCtx, auth) }()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("server started", "addr", addr, "feed", cfg.Feed.Backend, "cache", cfg.Cache.Backend)
	if opts.Out != nil {
		printSystemMessage(opts.Out, "Serving session API on %s", addr)
	}
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	select {
	case err := <-serverErrors:
		cancel()
		<-runDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down", "cause", shutdownCause(ctx))

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
		_ = srv.Close()
	}

	cancel()
	if err := <-runDone; err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newAuthenticator(cfg config.Config) *jwt.Source {
	var opts []jwt.Option
	if cfg.Auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Auth.Issuer))
	}
	return jwt.New([]byte(cfg.Auth.Secret), opts...)
}
