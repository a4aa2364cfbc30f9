package memory

import (
	"context"
	"sync"

	"github.com/aretw0/rentsync/pkg/domain"
)

// IdentityBroadcaster is an in-process identity session source.
// Watchers receive the current identity first and then every Set, in order.
// A slow watcher buffers transitions instead of losing them.
type IdentityBroadcaster struct {
	mu       sync.Mutex
	current  domain.Identity
	watchers map[*identityWatcher]struct{}
}

// NewIdentityBroadcaster starts in the pending state.
func NewIdentityBroadcaster() *IdentityBroadcaster {
	return &IdentityBroadcaster{
		current:  domain.Pending(),
		watchers: make(map[*identityWatcher]struct{}),
	}
}

// Current returns the latest identity.
func (b *IdentityBroadcaster) Current() domain.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Set publishes a new identity to all watchers.
func (b *IdentityBroadcaster) Set(id domain.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = id
	for w := range b.watchers {
		w.enqueue(id)
	}
}

// Watch implements ports.IdentitySource.
func (b *IdentityBroadcaster) Watch(ctx context.Context) (<-chan domain.Identity, error) {
	w := &identityWatcher{
		out:  make(chan domain.Identity),
		wake: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.watchers[w] = struct{}{}
	w.enqueue(b.current)
	b.mu.Unlock()

	go func() {
		defer close(w.out)
		defer func() {
			b.mu.Lock()
			delete(b.watchers, w)
			b.mu.Unlock()
		}()
		w.run(ctx)
	}()

	return w.out, nil
}

// identityWatcher holds undelivered identities in an unbounded FIFO.
type identityWatcher struct {
	out  chan domain.Identity
	wake chan struct{}

	mu    sync.Mutex
	queue []domain.Identity
}

func (w *identityWatcher) enqueue(id domain.Identity) {
	w.mu.Lock()
	w.queue = append(w.queue, id)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *identityWatcher) next() (domain.Identity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return domain.Identity{}, false
	}
	id := w.queue[0]
	w.queue = w.queue[1:]
	return id, true
}

func (w *identityWatcher) run(ctx context.Context) {
	for {
		id, ok := w.next()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case w.out <- id:
		case <-ctx.Done():
			return
		}
	}
}
