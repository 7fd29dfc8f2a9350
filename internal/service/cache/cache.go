package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle state of one cache slot.
type Status int

const (
	Idle Status = iota
	Pending
	Resolved
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Entry is an immutable snapshot of a slot.
type Entry[V any] struct {
	Key       Key
	Status    Status
	Value     V
	Err       error
	ErrKind   errors.ErrorKind
	FetchedAt time.Time
	// Stale is set once the TTL elapsed or the key was invalidated. The value is still served.
	Stale bool
	// Refreshing is set while a background refresh of a Resolved value runs.
	Refreshing bool
}

// Fetcher loads the value for key. It is called at most once per key at a time.
type Fetcher[V any] func(ctx context.Context, key Key) (V, error)

// Listener receives a snapshot every time the slot's status or value changes.
type Listener[V any] func(Entry[V])

// Store is an optional record tier consulted before the fetcher.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type Options[V any] struct {
	// TTL after which a Resolved value is refreshed in the background. Zero keeps it for the cache's lifetime.
	TTL          time.Duration
	FetchTimeout time.Duration
	// MaxEntries bounds the slot map. Zero means unbounded.
	MaxEntries int
	Store      Store
	// Aliases returns further keys identifying a resolved value, e.g. the id of a record loaded by name.
	Aliases func(V) []Key
	Metrics *observe.Metrics
	Now     func() time.Time
}

type slot[V any] struct {
	key       Key
	status    Status
	value     V
	err       error
	fetchedAt time.Time

	forceStale  bool
	refreshing  bool
	running     bool
	invalidated bool

	lastUsed  uint64
	listeners map[uint64]Listener[V]

	// outbox holds snapshots queued under mu in state-change order. One
	// goroutine at a time drains it, so listeners never see them reordered.
	outbox   []Entry[V]
	draining bool
}

// Cache is a request-deduplicating keyed cache. Get never blocks on I/O and
// never returns an error; failures surface as Failed entries.
type Cache[V any] struct {
	name   string
	fetch  Fetcher[V]
	opts   Options[V]
	logger *zap.Logger

	mu       sync.Mutex
	slots    map[Key]*slot[V]
	aliases  map[Key]Key
	clock    uint64
	nextID   uint64
	closed   bool
	inflight sync.WaitGroup

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func New[V any](name string, fetch Fetcher[V], opts Options[V], logger *zap.Logger) *Cache[V] {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = constants.CacheConfig.FetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[V]{
		name:    name,
		fetch:   fetch,
		opts:    opts,
		logger:  util.OrNop(logger).With(zap.String("cache", name)),
		slots:   make(map[Key]*slot[V]),
		aliases: make(map[Key]Key),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Cache[V]) Name() string {
	return c.name
}

// Get returns the current state of key. An Idle key moves to Pending and a
// fetch starts in the background; a stale Resolved key keeps its value while
// a single refresh runs.
func (c *Cache[V]) Get(key Key) Entry[V] {
	c.mu.Lock()
	key = c.resolveLocked(key)
	s := c.slotLocked(key)

	var (
		start    bool
		result   string
		drain    bool
		previous = s.status
	)
	switch s.status {
	case Idle:
		s.status = Pending
		start = true
		result = observe.LookupMiss
	case Pending:
		result = observe.LookupPending
	case Resolved:
		result = observe.LookupHit
		if c.staleLocked(s) {
			result = observe.LookupStale
			if !s.refreshing {
				s.refreshing = true
				start = true
			}
		}
	case Failed:
		result = observe.LookupFailed
		if s.forceStale {
			s.status = Pending
			s.forceStale = false
			start = true
			result = observe.LookupMiss
		}
	}
	entry := c.snapshotLocked(s)
	if s.status != previous {
		drain = c.enqueueLocked(s, entry)
	}
	c.mu.Unlock()

	c.opts.Metrics.RecordLookup(context.Background(), c.name, result)
	if drain {
		c.drain(s)
	}
	if start {
		c.group.DoChan(key.String(), c.runner(key))
	}
	return entry
}

// Peek returns the current state of key without side effects.
func (c *Cache[V]) Peek(key Key) Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	key = c.resolveLocked(key)
	if s, ok := c.slots[key]; ok {
		return c.snapshotLocked(s)
	}
	return Entry[V]{Key: key, Status: Idle}
}

// Load is Get followed by waiting for the in-flight fetch, if any. Stale
// values are returned as-is. Cancelling ctx stops the wait, not the fetch.
func (c *Cache[V]) Load(ctx context.Context, key Key) (V, error) {
	var zero V
	entry := c.Get(key)
	for attempt := 0; ; attempt++ {
		switch entry.Status {
		case Resolved:
			return entry.Value, nil
		case Failed:
			return zero, entry.Err
		case Idle:
			// evicted between the wait and the peek; start over once
			if attempt > 1 {
				return zero, errors.NewNetworkError("cache entry evicted while loading", map[string]any{
					"key": entry.Key.String(),
				}, nil)
			}
			entry = c.Get(key)
			continue
		}

		ch := c.group.DoChan(entry.Key.String(), c.runner(entry.Key))
		select {
		case <-ctx.Done():
			return zero, errors.NewNetworkError("load cancelled", map[string]any{
				"key": entry.Key.String(),
			}, ctx.Err())
		case <-ch:
		}
		entry = c.Peek(entry.Key)
	}
}

// Invalidate makes the next Get refetch key, bypassing the record tier. A
// pending fetch is not duplicated; its result is stored and marked stale.
func (c *Cache[V]) Invalidate(key Key) {
	c.mu.Lock()
	key = c.resolveLocked(key)
	c.mu.Unlock()

	if c.opts.Store != nil {
		ctx, cancel := context.WithTimeout(c.ctx, constants.CacheConfig.StoreTimeout)
		if err := c.opts.Store.Del(ctx, storeKey(key)); err != nil {
			c.logger.Warn("Record tier delete failed", zap.String("key", key.String()), zap.Error(err))
		}
		cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return
	}
	switch {
	case s.status == Pending || s.refreshing:
		s.invalidated = true
	case s.status == Resolved || s.status == Failed:
		s.forceStale = true
	}
	c.logger.Debug("Cache entry invalidated", zap.String("key", key.String()), zap.String("status", s.status.String()))
}

// Subscribe registers listener for key without starting a fetch. The
// returned function removes the subscription; the in-flight fetch, if any, keeps running.
func (c *Cache[V]) Subscribe(key Key, listener Listener[V]) func() {
	c.mu.Lock()
	key = c.resolveLocked(key)
	s := c.slotLocked(key)
	c.nextID++
	id := c.nextID
	if s.listeners == nil {
		s.listeners = make(map[uint64]Listener[V])
	}
	s.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if s, ok := c.slots[key]; ok {
				delete(s.listeners, id)
			}
		})
	}
}

// Alias makes alias resolve to the slot of canonical. It is a no-op when
// alias already owns a slot of its own.
func (c *Cache[V]) Alias(alias, canonical Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aliasLocked(alias, canonical)
}

// Len returns the number of slots.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Close cancels in-flight fetches and waits for them to settle.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.inflight.Wait()
}

func (c *Cache[V]) runner(key Key) func() (any, error) {
	return func() (any, error) {
		c.run(key)
		return nil, nil
	}
}

// run performs the fetch for key unless it already completed; singleflight
// joins concurrent callers, run itself guards against late ones.
func (c *Cache[V]) run(key Key) {
	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok || s.running || (s.status != Pending && !s.refreshing) {
		c.mu.Unlock()
		return
	}
	if c.closed {
		c.mu.Unlock()
		var zero V
		c.complete(key, zero, errors.NewNetworkError("cache closed", map[string]any{"key": key.String()}, nil))
		return
	}
	s.running = true
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	value, err := c.fetchValue(key)
	c.complete(key, value, err)
}

func (c *Cache[V]) fetchValue(key Key) (V, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	defer cancel()

	started := time.Now()
	tierKey := storeKey(key)

	if c.opts.Store != nil {
		var cached V
		found, err := c.opts.Store.Get(ctx, tierKey, &cached)
		if err != nil {
			c.logger.Warn("Record tier read failed", zap.String("key", tierKey), zap.Error(err))
		} else if found {
			c.opts.Metrics.RecordFetch(ctx, c.name, "store", time.Since(started))
			return cached, nil
		}
	}

	value, err := c.fetch(ctx, key)
	if err != nil {
		err = classify(ctx, key, err)
		c.opts.Metrics.RecordFetch(ctx, c.name, errors.KindOf(err).String(), time.Since(started))
		return value, err
	}
	c.opts.Metrics.RecordFetch(ctx, c.name, "ok", time.Since(started))

	if c.opts.Store != nil {
		storeCtx, storeCancel := context.WithTimeout(c.ctx, constants.CacheConfig.StoreTimeout)
		if err := c.opts.Store.Set(storeCtx, tierKey, value, c.opts.TTL); err != nil {
			c.logger.Warn("Record tier write failed", zap.String("key", tierKey), zap.Error(err))
		}
		storeCancel()
	}
	return value, nil
}

func storeKey(key Key) string {
	return "pokedex:" + key.String()
}

// classify gives untyped fetch errors a kind. Deadline and cancellation are
// network conditions from the consumer's point of view.
func classify(ctx context.Context, key Key, err error) error {
	if errors.KindOf(err) != errors.KindNone {
		return err
	}
	message := "fetch failed"
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = "fetch timed out"
	}
	return errors.NewNetworkError(message, map[string]any{"key": key.String()}, err)
}

func (c *Cache[V]) complete(key Key, value V, err error) {
	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	s.running = false

	changed := true
	if s.refreshing {
		s.refreshing = false
		if err == nil {
			s.value = value
			s.fetchedAt = c.opts.Now()
			s.forceStale = false
		} else {
			changed = false
			c.logger.Warn("Background refresh failed, keeping previous value",
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
	} else if err == nil {
		s.status = Resolved
		s.value = value
		s.err = nil
		s.fetchedAt = c.opts.Now()
		s.forceStale = false
	} else {
		var zero V
		s.status = Failed
		s.value = zero
		s.err = err
		s.fetchedAt = c.opts.Now()
		c.logFailure(key, err)
	}
	if s.invalidated {
		s.invalidated = false
		s.forceStale = true
	}

	if err == nil && c.opts.Aliases != nil {
		for _, alias := range c.opts.Aliases(value) {
			c.aliasLocked(alias, key)
		}
	}

	var drain bool
	if changed {
		drain = c.enqueueLocked(s, c.snapshotLocked(s))
	}
	c.mu.Unlock()

	if drain {
		c.drain(s)
	}
}

func (c *Cache[V]) logFailure(key Key, err error) {
	fields := []zap.Field{zap.String("key", key.String()), zap.Error(err)}
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		c.logger.Debug("Cache fetch not found", fields...)
	case errors.KindDecode, errors.KindMalformedGraph:
		c.logger.Error("Cache fetch returned unusable data", fields...)
	default:
		c.logger.Warn("Cache fetch failed", fields...)
	}
}

func (c *Cache[V]) resolveLocked(key Key) Key {
	if canonical, ok := c.aliases[key]; ok {
		return canonical
	}
	return key
}

func (c *Cache[V]) aliasLocked(alias, canonical Key) bool {
	if alias.IsZero() || alias.Kind != canonical.Kind {
		return false
	}
	canonical = c.resolveLocked(canonical)
	if alias == canonical {
		return false
	}
	if _, owned := c.slots[alias]; owned {
		return false
	}
	if _, ok := c.aliases[alias]; ok {
		return false
	}
	c.aliases[alias] = canonical
	return true
}

func (c *Cache[V]) slotLocked(key Key) *slot[V] {
	c.clock++
	if s, ok := c.slots[key]; ok {
		s.lastUsed = c.clock
		return s
	}
	s := &slot[V]{key: key, lastUsed: c.clock}
	c.slots[key] = s
	if c.opts.MaxEntries > 0 && len(c.slots) > c.opts.MaxEntries {
		c.evictLocked(key)
	}
	return s
}

// evictLocked drops the least recently used slot that is settled and
// unobserved. Pending and subscribed slots are never evicted.
func (c *Cache[V]) evictLocked(keep Key) {
	var victim *slot[V]
	for k, s := range c.slots {
		if k == keep || s.status == Pending || s.refreshing || s.running || s.draining || len(s.listeners) > 0 {
			continue
		}
		if victim == nil || s.lastUsed < victim.lastUsed {
			victim = s
		}
	}
	if victim == nil {
		return
	}
	delete(c.slots, victim.key)
	for alias, canonical := range c.aliases {
		if canonical == victim.key {
			delete(c.aliases, alias)
		}
	}
	c.opts.Metrics.RecordEviction(context.Background(), c.name)
}

func (c *Cache[V]) staleLocked(s *slot[V]) bool {
	if s.forceStale {
		return true
	}
	return c.opts.TTL > 0 && c.opts.Now().Sub(s.fetchedAt) >= c.opts.TTL
}

func (c *Cache[V]) snapshotLocked(s *slot[V]) Entry[V] {
	e := Entry[V]{
		Key:        s.key,
		Status:     s.status,
		Value:      s.value,
		Err:        s.err,
		ErrKind:    errors.KindOf(s.err),
		FetchedAt:  s.fetchedAt,
		Refreshing: s.refreshing,
	}
	if s.status == Resolved || s.status == Failed {
		e.Stale = c.staleLocked(s)
	}
	return e
}

// enqueueLocked queues entry for the slot's listeners and reports whether
// the caller became the drainer.
func (c *Cache[V]) enqueueLocked(s *slot[V], entry Entry[V]) bool {
	if len(s.listeners) == 0 {
		return false
	}
	s.outbox = append(s.outbox, entry)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

// drain delivers queued snapshots in order, outside the lock. Listeners are
// looked up per snapshot so an unsubscribe takes effect immediately.
func (c *Cache[V]) drain(s *slot[V]) {
	for {
		c.mu.Lock()
		if len(s.outbox) == 0 {
			s.draining = false
			s.outbox = nil
			c.mu.Unlock()
			return
		}
		entry := s.outbox[0]
		s.outbox[0] = Entry[V]{}
		s.outbox = s.outbox[1:]
		listeners := listenersOf(s)
		c.mu.Unlock()

		emit(listeners, entry)
	}
}

func listenersOf[V any](s *slot[V]) []Listener[V] {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]Listener[V], 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func emit[V any](listeners []Listener[V], entry Entry[V]) {
	for _, l := range listeners {
		l(entry)
	}
}
