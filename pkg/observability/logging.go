package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/rentsync/pkg/domain"
)

// LogHooks returns hooks that write reconciler events to logger.
// Subscription changes and fallbacks log at Info, snapshot decisions at Debug.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubscribe: func(ctx context.Context, e *domain.SubscriptionEvent) {
			logger.InfoContext(ctx, "subscribed", "subject_id", e.SubjectID, "handle_id", e.HandleID)
		},
		OnUnsubscribe: func(ctx context.Context, e *domain.SubscriptionEvent) {
			logger.InfoContext(ctx, "unsubscribed", "subject_id", e.SubjectID, "handle_id", e.HandleID)
		},
		OnApply: func(ctx context.Context, e *domain.UpdateEvent) {
			logger.DebugContext(ctx, "snapshot applied",
				"subject_id", e.SubjectID,
				"updated_at", e.Incoming,
				"watermark", e.Watermark,
			)
		},
		OnDiscard: func(ctx context.Context, e *domain.UpdateEvent) {
			logger.DebugContext(ctx, "stale snapshot discarded",
				"subject_id", e.SubjectID,
				"updated_at", e.Incoming,
				"watermark", e.Watermark,
			)
		},
		OnClear: func(ctx context.Context, e *domain.UpdateEvent) {
			logger.InfoContext(ctx, "cached user cleared", "subject_id", e.SubjectID)
		},
		OnFallback: func(ctx context.Context, e *domain.FallbackEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "fallback fetch failed",
					"subject_id", e.SubjectID,
					"cause", e.Cause,
					"error", e.Err,
				)
				return
			}
			logger.InfoContext(ctx, "recovered via fallback fetch", "subject_id", e.SubjectID, "cause", e.Cause)
		},
	}
}
