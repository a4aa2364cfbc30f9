package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/getsentry/sentry-go"
)

// ExceptionCapturer is the part of *sentry.Hub used for reporting.
type ExceptionCapturer interface {
	CaptureException(exception error) *sentry.EventID
}

// SentryOptions configures InitSentry.
type SentryOptions struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
}

// InitSentry initializes the global Sentry client.
// It returns a flush function that should run before the process exits.
// An empty DSN disables reporting and returns a no-op flush.
func InitSentry(opts SentryOptions) (func(), error) {
	if opts.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		EnableTracing:    opts.TracesSampleRate > 0,
		TracesSampleRate: opts.TracesSampleRate,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// SentryHooks reports fallback fetches that failed, which leave the user signed in
// with no cached profile.
func SentryHooks(capturer ExceptionCapturer) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFallback: func(_ context.Context, e *domain.FallbackEvent) {
			if e.Err == nil {
				return
			}
			capturer.CaptureException(fmt.Errorf("fallback fetch for %s after %v: %w", e.SubjectID, e.Cause, e.Err))
		},
	}
}
