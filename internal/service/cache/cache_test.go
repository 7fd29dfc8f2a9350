package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	calls   atomic.Int64
	release chan struct{}

	mu   sync.Mutex
	errs []error
}

func (f *fakeFetcher) fetch(ctx context.Context, key Key) (string, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "value:" + key.ID + ":" + time.Now().Format(time.RFC3339Nano), nil
}

func (f *fakeFetcher) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, f *fakeFetcher, opts Options[string]) *Cache[string] {
	t.Helper()
	c := New[string]("test", f.fetch, opts, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func pokemonKey(raw string) Key {
	return NewKey(domain.KindPokemon, raw)
}

func TestNewKeyNormalizes(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"Pikachu", " pikachu "},
		{"025", "25"},
		{"PIKACHU", "pikachu"},
	}
	for _, tc := range tests {
		if NewKey(domain.KindPokemon, tc.a) != NewKey(domain.KindPokemon, tc.b) {
			t.Errorf("expected %q and %q to share a key", tc.a, tc.b)
		}
	}

	url := "https://pokeapi.co/api/v2/Evolution-Chain/10/"
	if got := NewKey(domain.KindEvolution, url); got.ID != url {
		t.Errorf("urls must be kept verbatim, got %q", got.ID)
	}
	if NewKey(domain.KindPokemon, "25") == NewKey(domain.KindSpecies, "25") {
		t.Error("keys of different kinds must differ")
	}
	if IDKey(domain.KindPokemon, 25) != pokemonKey("025") {
		t.Error("IDKey must match the canonical numeric key")
	}
}

func TestGetDeduplicatesConcurrentRequests(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := newTestCache(t, f, Options[string]{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := "Pikachu"
			if i%2 == 0 {
				raw = "pikachu "
			}
			entry := c.Get(pokemonKey(raw))
			if entry.Status != Pending {
				t.Errorf("expected pending, got %s", entry.Status)
			}
		}(i)
	}
	wg.Wait()
	close(f.release)

	results := make(chan string, 10)
	for i := 0; i < 10; i++ {
		go func() {
			v, err := c.Load(context.Background(), pokemonKey("pikachu"))
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			results <- v
		}()
	}
	first := <-results
	for i := 1; i < 10; i++ {
		if v := <-results; v != first {
			t.Fatalf("torn read: %q vs %q", v, first)
		}
	}
	if calls := f.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one fetch, got %d", calls)
	}
}

func TestFreshnessAndBackgroundRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{TTL: time.Minute, Now: clock.Now})
	key := pokemonKey("25")
	ctx := context.Background()

	original, err := c.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 0; i < 2; i++ {
		if entry := c.Get(key); entry.Status != Resolved || entry.Stale || entry.Value != original {
			t.Fatalf("expected fresh hit, got %+v", entry)
		}
	}
	if calls := f.calls.Load(); calls != 1 {
		t.Fatalf("expected no refetch within TTL, got %d calls", calls)
	}

	clock.Advance(2 * time.Minute)
	entry := c.Get(key)
	if entry.Status != Resolved || !entry.Stale || entry.Value != original {
		t.Fatalf("stale entry must keep serving the old value, got %+v", entry)
	}
	waitFor(t, "refresh", func() bool { return !c.Peek(key).Refreshing })

	refreshed := c.Get(key)
	if refreshed.Status != Resolved || refreshed.Stale || refreshed.Value == original {
		t.Fatalf("expected swapped-in value, got %+v", refreshed)
	}
	if calls := f.calls.Load(); calls != 2 {
		t.Fatalf("expected exactly one refetch after TTL, got %d", calls)
	}
}

func TestRefreshFailureKeepsPreviousValue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{TTL: time.Minute, Now: clock.Now})
	key := pokemonKey("25")

	original, err := c.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var statuses []Status
	var mu sync.Mutex
	unsubscribe := c.Subscribe(key, func(e Entry[string]) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, e.Status)
	})
	defer unsubscribe()

	f.failNext(errors.NewNetworkError("boom", nil, nil))
	clock.Advance(2 * time.Minute)
	c.Get(key)
	waitFor(t, "refresh", func() bool { return !c.Peek(key).Refreshing })

	entry := c.Peek(key)
	if entry.Status != Resolved || entry.Value != original {
		t.Fatalf("failed refresh must keep the old value, got %+v", entry)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 0 {
		t.Fatalf("failed refresh must not notify, got %v", statuses)
	}
}

func TestFailureIsStickyUntilInvalidated(t *testing.T) {
	f := &fakeFetcher{}
	f.failNext(errors.NewNotFoundError("missing", 404, nil))
	c := newTestCache(t, f, Options[string]{})
	key := pokemonKey("missingno")
	ctx := context.Background()

	if _, err := c.Load(ctx, key); !errors.Is(err, errors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	entry := c.Get(key)
	if entry.Status != Failed || entry.ErrKind != errors.KindNotFound {
		t.Fatalf("expected failed entry, got %+v", entry)
	}
	if calls := f.calls.Load(); calls != 1 {
		t.Fatalf("failed entries must not retry automatically, got %d calls", calls)
	}

	c.Invalidate(key)
	if _, err := c.Load(ctx, key); err != nil {
		t.Fatalf("retry after invalidate: %v", err)
	}
	if calls := f.calls.Load(); calls != 2 {
		t.Fatalf("invalidate+get must retry exactly once, got %d calls", calls)
	}
}

func TestInvalidatePendingDoesNotDuplicateFetch(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := newTestCache(t, f, Options[string]{})
	key := pokemonKey("1")

	c.Get(key)
	waitFor(t, "fetch start", func() bool { return f.calls.Load() == 1 })
	c.Invalidate(key)
	c.Get(key)
	close(f.release)

	waitFor(t, "resolution", func() bool { return c.Peek(key).Status == Resolved })
	if calls := f.calls.Load(); calls != 1 {
		t.Fatalf("invalidate while pending must not start another fetch, got %d", calls)
	}
	if !c.Peek(key).Stale {
		t.Fatal("result of an invalidated fetch must be stale")
	}

	c.Get(key)
	waitFor(t, "refetch", func() bool { return !c.Peek(key).Refreshing && f.calls.Load() == 2 })
}

func TestSubscribeSeesStatusChanges(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := newTestCache(t, f, Options[string]{})
	key := pokemonKey("bulbasaur")

	events := make(chan Entry[string], 8)
	unsubscribe := c.Subscribe(key, func(e Entry[string]) { events <- e })

	if c.Peek(key).Status != Idle || f.calls.Load() != 0 {
		t.Fatal("subscribe must not start a fetch")
	}

	c.Get(key)
	if e := <-events; e.Status != Pending {
		t.Fatalf("expected pending notification, got %s", e.Status)
	}
	c.Get(key)
	close(f.release)
	if e := <-events; e.Status != Resolved || e.Value == "" {
		t.Fatalf("expected resolved notification, got %+v", e)
	}

	unsubscribe()
	unsubscribe()
	c.Invalidate(key)
	c.Get(key)
	waitFor(t, "refetch", func() bool { return f.calls.Load() == 2 && !c.Peek(key).Refreshing })

	select {
	case e := <-events:
		t.Fatalf("unexpected notification after unsubscribe: %+v", e)
	default:
	}
}

func TestAliasesShareOneSlot(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{
		Aliases: func(string) []Key { return []Key{pokemonKey("25")} },
	})
	ctx := context.Background()

	byName, err := c.Load(ctx, pokemonKey("Pikachu"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry := c.Get(pokemonKey("025"))
	if entry.Status != Resolved || entry.Value != byName {
		t.Fatalf("alias must resolve to the named slot, got %+v", entry)
	}
	if calls := f.calls.Load(); calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}

	if c.Alias(pokemonKey("pikachu"), pokemonKey("1")) {
		t.Fatal("a key that owns a slot must not become an alias")
	}
	if !c.Alias(pokemonKey("raichu-alias"), pokemonKey("25")) {
		t.Fatal("expected alias to chain to the canonical slot")
	}
	if got := c.Peek(pokemonKey("raichu-alias")); got.Value != byName {
		t.Fatalf("chained alias resolved to %+v", got)
	}
}

func TestEvictionSkipsSubscribedEntries(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{MaxEntries: 2})
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		if _, err := c.Load(ctx, pokemonKey(id)); err != nil {
			t.Fatalf("Load %s: %v", id, err)
		}
	}
	unsubscribe := c.Subscribe(pokemonKey("1"), func(Entry[string]) {})
	defer unsubscribe()

	if _, err := c.Load(ctx, pokemonKey("3")); err != nil {
		t.Fatalf("Load 3: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity bound of 2, got %d", c.Len())
	}
	if c.Peek(pokemonKey("1")).Status != Resolved {
		t.Fatal("subscribed entry must survive eviction")
	}
	if c.Peek(pokemonKey("2")).Status != Idle {
		t.Fatal("least recently used entry should have been evicted")
	}
}

func TestFetchTimeoutSurfacesAsNetworkError(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := newTestCache(t, f, Options[string]{FetchTimeout: 20 * time.Millisecond})

	_, err := c.Load(context.Background(), pokemonKey("hung"))
	if !errors.Is(err, errors.KindNetwork) {
		t.Fatalf("expected network error on timeout, got %v", err)
	}
	close(f.release)
}

func TestLoadStopsWaitingOnCancel(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{})}
	c := newTestCache(t, f, Options[string]{})
	key := pokemonKey("slow")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Load(ctx, key); !errors.Is(err, errors.KindNetwork) {
		t.Fatalf("expected cancelled load to fail, got %v", err)
	}

	close(f.release)
	waitFor(t, "fetch to complete regardless", func() bool { return c.Peek(key).Status == Resolved })
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	dels int
}

func (m *memoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return false, nil
	}
	*dest.(*string) = v
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.dels++
	return nil
}

func TestRecordTierIsConsultedFirst(t *testing.T) {
	store := &memoryStore{data: map[string]string{"pokedex:pokemon:7": "from-store"}}
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{Store: store})
	ctx := context.Background()

	v, err := c.Load(ctx, pokemonKey("7"))
	if err != nil || v != "from-store" {
		t.Fatalf("expected record tier value, got %q %v", v, err)
	}
	if f.calls.Load() != 0 {
		t.Fatal("record tier hit must not reach the fetcher")
	}

	if _, err := c.Load(ctx, pokemonKey("8")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	store.mu.Lock()
	_, written := store.data["pokedex:pokemon:8"]
	store.mu.Unlock()
	if !written {
		t.Fatal("fetched value must be written to the record tier")
	}

	c.Invalidate(pokemonKey("7"))
	c.Get(pokemonKey("7"))
	waitFor(t, "refetch", func() bool { return f.calls.Load() == 2 && !c.Peek(pokemonKey("7")).Refreshing })
	if got := c.Peek(pokemonKey("7")).Value; got == "from-store" {
		t.Fatal("invalidate must bypass the record tier")
	}
}

// stallingCounter blocks the first "miss" lookup until released, holding Get
// between its state change and the notification.
type stallingCounter struct {
	noop.Int64Counter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *stallingCounter) Add(_ context.Context, _ int64, opts ...metric.AddOption) {
	attrs := metric.NewAddConfig(opts).Attributes()
	if v, ok := attrs.Value("result"); ok && v.AsString() == observe.LookupMiss {
		c.once.Do(func() {
			close(c.entered)
			<-c.release
		})
	}
}

func TestNotificationsFollowStateOrder(t *testing.T) {
	counter := &stallingCounter{entered: make(chan struct{}), release: make(chan struct{})}
	metrics := &observe.Metrics{
		CacheLookups:   counter,
		CacheFetches:   noop.Int64Counter{},
		CacheEvictions: noop.Int64Counter{},
		FetchDuration:  noop.Float64Histogram{},
		CatalogErrors:  noop.Int64Counter{},
	}
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options[string]{Metrics: metrics})
	key := pokemonKey("pikachu")

	var (
		mu     sync.Mutex
		events []Status
	)
	c.Subscribe(key, func(e Entry[string]) {
		mu.Lock()
		events = append(events, e.Status)
		mu.Unlock()
	})

	getDone := make(chan struct{})
	go func() {
		defer close(getDone)
		c.Get(key)
	}()
	<-counter.entered

	// Resolve the key while the first Get is still between unlock and notify.
	if _, err := c.Load(context.Background(), key); err != nil {
		t.Fatalf("Load: %v", err)
	}
	close(counter.release)
	<-getDone

	waitFor(t, "both notifications", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if events[0] != Pending || events[1] != Resolved {
		t.Fatalf("notifications out of order: %v", events)
	}
	if last := events[len(events)-1]; last != c.Peek(key).Status {
		t.Fatalf("last notification %s disagrees with entry state %s", last, c.Peek(key).Status)
	}
}

func TestDecodeFailureIsIsolatedToItsKey(t *testing.T) {
	f := &fakeFetcher{}
	f.failNext(errors.NewDecodeError("unexpected payload", map[string]any{"key": "pokemon:1"}, nil))
	c := newTestCache(t, f, Options[string]{})
	ctx := context.Background()
	broken := pokemonKey("1")
	healthy := pokemonKey("2")

	if _, err := c.Load(ctx, broken); !errors.Is(err, errors.KindDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := c.Load(ctx, healthy); err != nil {
		t.Fatalf("unrelated key failed: %v", err)
	}

	if e := c.Peek(healthy); e.Status != Resolved || e.Err != nil {
		t.Fatalf("healthy key must resolve, got %+v", e)
	}
	if e := c.Peek(broken); e.Status != Failed || e.ErrKind != errors.KindDecode {
		t.Fatalf("broken key must stay failed with a decode error, got %+v", e)
	}
}
