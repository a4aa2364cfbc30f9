package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventApply       EventType = "apply"
	EventDiscard     EventType = "discard"
	EventClear       EventType = "clear"
	EventFallback    EventType = "fallback"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
}

// SubscriptionEvent describes a handle being opened or closed.
type SubscriptionEvent struct {
	EventBase
	HandleID string `json:"handle_id"`
}

// UpdateEvent describes a snapshot that was applied, discarded or cleared the cache.
type UpdateEvent struct {
	EventBase
	Incoming  int64 `json:"incoming"`
	Watermark int64 `json:"watermark"`
}

// FallbackEvent describes a one-shot fetch performed after a transport error.
type FallbackEvent struct {
	EventBase
	Cause error `json:"-"`
	Err   error `json:"-"`
}

// LifecycleHooks defines callbacks for reconciler observability.
type LifecycleHooks struct {
	OnSubscribe   func(context.Context, *SubscriptionEvent)
	OnUnsubscribe func(context.Context, *SubscriptionEvent)
	OnApply       func(context.Context, *UpdateEvent)
	OnDiscard     func(context.Context, *UpdateEvent)
	OnClear       func(context.Context, *UpdateEvent)
	OnFallback    func(context.Context, *FallbackEvent)
	OnStateChange func(context.Context, CachedUser)
}

// Merge returns hooks that invoke h first and then other for every callback.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSubscribe:   chain(h.OnSubscribe, other.OnSubscribe),
		OnUnsubscribe: chain(h.OnUnsubscribe, other.OnUnsubscribe),
		OnApply:       chain(h.OnApply, other.OnApply),
		OnDiscard:     chain(h.OnDiscard, other.OnDiscard),
		OnClear:       chain(h.OnClear, other.OnClear),
		OnFallback:    chain(h.OnFallback, other.OnFallback),
		OnStateChange: chain(h.OnStateChange, other.OnStateChange),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
