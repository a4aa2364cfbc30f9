package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
)

// DocumentStore is an in-memory user document store with live subscriptions.
// It implements ports.DocumentSource and ports.DocumentWriter and lets tests
// inject transport failures and out-of-order replays.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]domain.UserRecord
	subs map[string]map[*subscription]struct{}

	subscribeErr error
	fetchErr     error
}

// NewDocumentStore creates an empty document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]domain.UserRecord),
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// Subscribe opens a live feed on subjectID. The current document is delivered first.
func (s *DocumentStore) Subscribe(ctx context.Context, subjectID string) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}

	sub := newSubscription(s, subjectID)
	if s.subs[subjectID] == nil {
		s.subs[subjectID] = make(map[*subscription]struct{})
	}
	s.subs[subjectID][sub] = struct{}{}
	sub.enqueue(domain.FeedEvent{Snapshot: s.snapshotLocked(subjectID)})

	go sub.run()
	return sub, nil
}

// Fetch reads the current document once.
func (s *DocumentStore) Fetch(ctx context.Context, subjectID string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return domain.Snapshot{}, s.fetchErr
	}
	return s.snapshotLocked(subjectID), nil
}

// Put stores user and notifies its subscribers.
func (s *DocumentStore) Put(ctx context.Context, user domain.UserRecord) error {
	if user.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[user.ID] = user
	s.broadcastLocked(user.ID, domain.FeedEvent{Snapshot: domain.Found(user)})
	return nil
}

// Delete removes a document and notifies its subscribers.
func (s *DocumentStore) Delete(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[subjectID]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(s.docs, subjectID)
	s.broadcastLocked(subjectID, domain.FeedEvent{Snapshot: domain.Missing()})
	return nil
}

// Replay delivers snap to subscribers of subjectID without storing it,
// simulating a transport retry that redelivers an old snapshot.
func (s *DocumentStore) Replay(subjectID string, snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(subjectID, domain.FeedEvent{Snapshot: snap})
}

// Break ends every subscription on subjectID with a transport error.
func (s *DocumentStore) Break(subjectID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(subjectID, domain.FeedEvent{Err: err})
}

// FailSubscribe makes subsequent Subscribe calls return err. Nil restores normal behavior.
func (s *DocumentStore) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr = err
}

// FailFetch makes subsequent Fetch calls return err. Nil restores normal behavior.
func (s *DocumentStore) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// Subscribers returns the number of open subscriptions on subjectID.
func (s *DocumentStore) Subscribers(subjectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[subjectID])
}

// TotalSubscribers returns the number of open subscriptions across all subjects.
func (s *DocumentStore) TotalSubscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, set := range s.subs {
		n += len(set)
	}
	return n
}

func (s *DocumentStore) snapshotLocked(subjectID string) domain.Snapshot {
	user, ok := s.docs[subjectID]
	if !ok {
		return domain.Missing()
	}
	return domain.Found(user)
}

func (s *DocumentStore) broadcastLocked(subjectID string, ev domain.FeedEvent) {
	for sub := range s.subs[subjectID] {
		sub.enqueue(ev)
		if ev.Err != nil {
			delete(s.subs[subjectID], sub)
		}
	}
	if len(s.subs[subjectID]) == 0 {
		delete(s.subs, subjectID)
	}
}

func (s *DocumentStore) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[sub.subjectID], sub)
	if len(s.subs[sub.subjectID]) == 0 {
		delete(s.subs, sub.subjectID)
	}
}

// subscription buffers events in an unbounded queue so writers never block on readers.
type subscription struct {
	store     *DocumentStore
	subjectID string

	events chan domain.FeedEvent
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []domain.FeedEvent
}

func newSubscription(store *DocumentStore, subjectID string) *subscription {
	return &subscription{
		store:     store,
		subjectID: subjectID,
		events:    make(chan domain.FeedEvent),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (s *subscription) Events() <-chan domain.FeedEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.store.remove(s)
	})
	return nil
}

func (s *subscription) enqueue(ev domain.FeedEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.events)
	for {
		s.mu.Lock()
		var (
			ev  domain.FeedEvent
			has bool
		)
		if len(s.queue) > 0 {
			ev, has = s.queue[0], true
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !has {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
		if ev.Err != nil {
			return
		}
	}
}
