// Package stream provides the producer side of a ports.Subscription for
// adapters whose feed is driven by a single reader goroutine.
package stream

import (
	"context"
	"sync"

	"github.com/aretw0/rentsync/pkg/domain"
)

// Subscription is a ports.Subscription fed by one producer goroutine.
// The producer calls Emit for every event and Finish when it returns.
type Subscription struct {
	events  chan domain.FeedEvent
	done    chan struct{}
	once    sync.Once
	onClose func() error
	err     error
}

// New creates a subscription. onClose, if not nil, runs once on Close and
// should unblock the producer (closing a connection, cancelling a context).
func New(onClose func() error) *Subscription {
	return &Subscription{
		events:  make(chan domain.FeedEvent),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events implements ports.Subscription.
func (s *Subscription) Events() <-chan domain.FeedEvent {
	return s.events
}

// Close implements ports.Subscription. It does not wait for the producer.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.err = s.onClose()
		}
	})
	return s.err
}

// Done is closed once Close has been called.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Emit delivers ev to the consumer. It returns false when the subscription
// was closed or ctx ended first; the producer should then return.
func (s *Subscription) Emit(ctx context.Context, ev domain.FeedEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Fail emits a terminal transport error unless the subscription was closed
// on purpose, in which case the error is only the echo of Close.
func (s *Subscription) Fail(ctx context.Context, err error) {
	if s.Closed() {
		return
	}
	s.Emit(ctx, domain.FeedEvent{Err: err})
}

// Finish closes the events channel. The producer must call it exactly once, on exit.
func (s *Subscription) Finish() {
	close(s.events)
}
