package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/google/uuid"
)

// DefaultCacheKey is the well-known slot the cached user is persisted under.
const DefaultCacheKey = "rentsync:user"

// handle is the one open subscription owned by the Reconciler.
type handle struct {
	id        string
	subjectID string
	sub       ports.Subscription
	once      sync.Once
	err       error
}

func (h *handle) close() error {
	h.once.Do(func() {
		h.err = h.sub.Close()
	})
	return h.err
}

// Reconciler mirrors one remote user document into a local cached user,
// driven by identity session transitions.
type Reconciler struct {
	source       ports.DocumentSource
	cache        ports.UserCache
	cacheKey     string
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	fetchTimeout time.Duration

	ctx    context.Context // Lifetime of subscriptions and fallback fetches
	cancel context.CancelFunc

	events  sync.Mutex // Serialises event handling; one event runs to completion
	closed  bool
	updated bool // Set by the first Update; Restore is a no-op afterwards

	mu        sync.RWMutex // Guards the published state below
	identity  domain.Identity
	user      *domain.UserRecord
	loading   bool
	watermark int64
	handle    *handle
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithCache persists the cached user through cache.
func WithCache(cache ports.UserCache) Option {
	return func(r *Reconciler) {
		r.cache = cache
	}
}

// WithCacheKey overrides DefaultCacheKey.
func WithCacheKey(key string) Option {
	return func(r *Reconciler) {
		r.cacheKey = key
	}
}

// WithLogger configures a logger for the Reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Reconciler) {
		r.hooks = r.hooks.Merge(hooks)
	}
}

// WithFetchTimeout bounds the fallback fetch. Zero means no timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		r.fetchTimeout = d
	}
}

// NewReconciler creates a Reconciler reading documents from source.
// The cached user starts empty and loading until the first identity arrives.
func NewReconciler(source ports.DocumentSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:   source,
		cacheKey: DefaultCacheKey,
		logger:   logging.NewNop(),
		identity: domain.Pending(),
		loading:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Restore loads the persisted cached user, if any.
// It does not open a subscription; that happens on the next Update.
// Once an identity transition has been handled the live state is fresher
// than the persisted slot, so Restore leaves it alone.
func (r *Reconciler) Restore(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}

	user, err := r.cache.Load(ctx, r.cacheKey)
	if errors.Is(err, domain.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore cached user: %w", err)
	}

	r.events.Lock()
	defer r.events.Unlock()

	if r.closed || r.updated {
		r.logger.Debug("Skipping restore, session already active", "subject_id", user.ID)
		return nil
	}

	before := r.State()
	defer r.notifyIfChanged(ctx, before)

	r.mu.Lock()
	r.user = user
	r.mu.Unlock()

	r.logger.Debug("Cached user restored", "subject_id", user.ID, "updated_at", user.UpdatedAt)
	return nil
}

// Update handles an identity session transition.
func (r *Reconciler) Update(ctx context.Context, id domain.Identity) {
	r.events.Lock()
	defer r.events.Unlock()

	if r.closed {
		return
	}
	r.updated = true

	before := r.State()
	defer r.notifyIfChanged(ctx, before)

	r.mu.Lock()
	r.identity = id
	r.mu.Unlock()

	switch id.Status {
	case domain.StatusAuthenticated:
		if id.SubjectID == "" {
			r.logger.Warn("Authenticated identity without subject, treating as pending")
			r.closeHandle(ctx)
			r.setLoading(true)
			return
		}
		r.sync(ctx, id.SubjectID)

	case domain.StatusUnauthenticated:
		r.closeHandle(ctx)
		r.clear(ctx)
		r.setLoading(false)

	case domain.StatusPending:
		r.closeHandle(ctx)
		r.setLoading(true)

	default:
		r.logger.Warn("Ignoring unknown session status", "status", id.Status)
	}
}

// sync ensures exactly one open subscription for subjectID.
func (r *Reconciler) sync(ctx context.Context, subjectID string) {
	if h := r.handle; h != nil && h.subjectID == subjectID {
		r.setLoading(false)
		return
	}

	r.closeHandle(ctx)

	r.mu.Lock()
	r.watermark = 0
	if r.user != nil && r.user.ID == subjectID {
		r.watermark = r.user.UpdatedAt
	}
	r.loading = true
	r.mu.Unlock()

	sub, err := r.source.Subscribe(r.ctx, subjectID)
	if err != nil {
		r.logger.Warn("Subscription failed, falling back to fetch", "subject_id", subjectID, "err", err)
		r.fallback(ctx, subjectID, err)
		return
	}

	h := &handle{id: uuid.NewString(), subjectID: subjectID, sub: sub}
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()

	r.logger.Debug("Subscription opened", "subject_id", subjectID, "handle_id", h.id)
	if r.hooks.OnSubscribe != nil {
		r.hooks.OnSubscribe(ctx, &domain.SubscriptionEvent{
			EventBase: r.base(domain.EventSubscribe, subjectID),
			HandleID:  h.id,
		})
	}

	go r.pump(h)
}

// pump forwards events of one handle until its channel closes.
func (r *Reconciler) pump(h *handle) {
	for ev := range h.sub.Events() {
		r.deliver(r.ctx, h.id, ev)
	}
	// A channel closed by the adapter itself is a transport failure;
	// deliver drops it if we closed the handle ourselves.
	r.deliver(r.ctx, h.id, domain.FeedEvent{Err: domain.ErrSubscriptionClosed})
}

// deliver handles one feed event from the handle identified by handleID.
func (r *Reconciler) deliver(ctx context.Context, handleID string, ev domain.FeedEvent) {
	r.events.Lock()
	defer r.events.Unlock()

	h := r.handle
	if r.closed || h == nil || h.id != handleID {
		r.logger.Debug("Ignoring event from closed subscription", "handle_id", handleID)
		return
	}

	before := r.State()
	defer r.notifyIfChanged(ctx, before)

	if ev.Err != nil {
		r.logger.Warn("Subscription transport error, falling back to fetch", "subject_id", h.subjectID, "err", ev.Err)
		r.closeHandle(ctx)
		r.fallback(ctx, h.subjectID, ev.Err)
		return
	}

	r.apply(ctx, h.subjectID, ev.Snapshot)
	r.setLoading(false)
}

// fallback performs exactly one fetch after the live feed failed.
func (r *Reconciler) fallback(ctx context.Context, subjectID string, cause error) {
	fetchCtx := r.ctx
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(r.ctx, r.fetchTimeout)
		defer cancel()
	}

	snap, err := r.source.Fetch(fetchCtx, subjectID)
	if err != nil {
		r.logger.Error("Fallback fetch failed, clearing cached user", "subject_id", subjectID, "err", err)
		r.clear(ctx)
	} else {
		r.apply(ctx, subjectID, snap)
	}
	r.setLoading(false)

	if r.hooks.OnFallback != nil {
		r.hooks.OnFallback(ctx, &domain.FallbackEvent{
			EventBase: r.base(domain.EventFallback, subjectID),
			Cause:     cause,
			Err:       err,
		})
	}
}

// apply runs the apply-if-not-stale rule. Ties overwrite the cached record.
func (r *Reconciler) apply(ctx context.Context, subjectID string, snap domain.Snapshot) {
	if !snap.Exists {
		r.clear(ctx)
		return
	}

	incoming := snap.User.UpdatedAt

	r.mu.Lock()
	if incoming < r.watermark {
		watermark := r.watermark
		r.mu.Unlock()

		r.logger.Debug("Discarding stale snapshot", "subject_id", subjectID, "incoming", incoming, "watermark", watermark)
		if r.hooks.OnDiscard != nil {
			r.hooks.OnDiscard(ctx, &domain.UpdateEvent{
				EventBase: r.base(domain.EventDiscard, subjectID),
				Incoming:  incoming,
				Watermark: watermark,
			})
		}
		return
	}

	user := snap.User
	if user.ID == "" {
		user.ID = subjectID
	}
	r.watermark = incoming
	r.user = &user
	r.mu.Unlock()

	r.persist(ctx, &user)
	if r.hooks.OnApply != nil {
		r.hooks.OnApply(ctx, &domain.UpdateEvent{
			EventBase: r.base(domain.EventApply, subjectID),
			Incoming:  incoming,
			Watermark: incoming,
		})
	}
}

// clear empties the cached user and resets the watermark.
func (r *Reconciler) clear(ctx context.Context) {
	r.mu.Lock()
	subjectID := ""
	if r.user != nil {
		subjectID = r.user.ID
	}
	r.watermark = 0
	r.user = nil
	r.mu.Unlock()

	r.persist(ctx, nil)
	if r.hooks.OnClear != nil {
		r.hooks.OnClear(ctx, &domain.UpdateEvent{EventBase: r.base(domain.EventClear, subjectID)})
	}
}

// closeHandle closes the open handle, if any. Safe to call with no handle.
func (r *Reconciler) closeHandle(ctx context.Context) {
	h := r.handle
	if h == nil {
		return
	}

	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()

	if err := h.close(); err != nil {
		r.logger.Warn("Failed to close subscription", "subject_id", h.subjectID, "handle_id", h.id, "err", err)
	}

	r.logger.Debug("Subscription closed", "subject_id", h.subjectID, "handle_id", h.id)
	if r.hooks.OnUnsubscribe != nil {
		r.hooks.OnUnsubscribe(ctx, &domain.SubscriptionEvent{
			EventBase: r.base(domain.EventUnsubscribe, h.subjectID),
			HandleID:  h.id,
		})
	}
}

func (r *Reconciler) setLoading(loading bool) {
	r.mu.Lock()
	r.loading = loading
	r.mu.Unlock()
}

// persist mirrors the cached user into the UserCache. Failures are logged, not surfaced.
func (r *Reconciler) persist(ctx context.Context, user *domain.UserRecord) {
	if r.cache == nil {
		return
	}

	var err error
	if user == nil {
		err = r.cache.Delete(ctx, r.cacheKey)
	} else {
		err = r.cache.Save(ctx, r.cacheKey, user)
	}
	if err != nil {
		r.logger.Warn("Failed to persist cached user", "key", r.cacheKey, "err", err)
	}
}

func (r *Reconciler) notifyIfChanged(ctx context.Context, before domain.CachedUser) {
	if r.hooks.OnStateChange == nil {
		return
	}
	after := r.State()
	if !sameState(before, after) {
		r.hooks.OnStateChange(ctx, after)
	}
}

func sameState(a, b domain.CachedUser) bool {
	if a.IsLoading != b.IsLoading {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == nil && b.User == nil
	}
	return *a.User == *b.User
}

func (r *Reconciler) base(t domain.EventType, subjectID string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SubjectID: subjectID}
}

// Close tears the Reconciler down, closing the open subscription exactly once.
// Further events are ignored. Calling Close more than once is a no-op.
func (r *Reconciler) Close() error {
	r.events.Lock()
	defer r.events.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.closeHandle(r.ctx)
	r.cancel()
	return nil
}

// Run drives the Reconciler from an identity source until ctx is done or the
// source closes its channel, then tears it down.
func (r *Reconciler) Run(ctx context.Context, identities ports.IdentitySource) error {
	ch, err := identities.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch identity session: %w", err)
	}
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ch:
			if !ok {
				return nil
			}
			r.Update(ctx, id)
		}
	}
}

// State returns a copy of the cached user and loading flag.
func (r *Reconciler) State() domain.CachedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := domain.CachedUser{IsLoading: r.loading}
	if r.user != nil {
		user := *r.user
		state.User = &user
	}
	return state
}

// IsAuthenticated reports whether the session is authenticated and a user is cached.
func (r *Reconciler) IsAuthenticated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity.Status == domain.StatusAuthenticated && r.user != nil
}

// Identity returns the last identity seen by Update.
func (r *Reconciler) Identity() domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// Watermark returns the highest UpdatedAt applied since the current subscription opened.
func (r *Reconciler) Watermark() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watermark
}

// Subscribed returns the subject of the open subscription, if any.
func (r *Reconciler) Subscribed() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.handle == nil {
		return "", false
	}
	return r.handle.subjectID, true
}
