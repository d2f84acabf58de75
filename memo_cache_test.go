package openaio_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	openaio "github.com/vasialek/openaio-api"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)}
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

// waitFor polls cond until it holds, failing the test after a while.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition was not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waiters returns the number of Get calls that are waiting on, or started, a fetch.
func waiters[K openaio.KeyConstraint, V openaio.ValueConstraint](c *openaio.MemoCache[K, V]) uint64 {
	s := c.Stats()
	return s.Misses + s.Shared
}

func TestMemoCache_Get(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("upstream unreachable")
	tests := []struct {
		name      string
		fetch     func(context.Context, string) ([]string, error)
		wantValue []string
		wantErr   error
	}{
		{
			name: "returns fetched value",
			fetch: func(_ context.Context, key string) ([]string, error) {
				return []string{key + " A", key + " B"}, nil
			},
			wantValue: []string{"jackets A", "jackets B"},
		},
		{
			name: "returns fetch error verbatim",
			fetch: func(context.Context, string) ([]string, error) {
				return nil, fetchErr
			},
			wantErr: fetchErr,
		},
		{
			name: "returns empty value",
			fetch: func(context.Context, string) ([]string, error) {
				return []string{}, nil
			},
			wantValue: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache := openaio.NewMemoCache(openaio.FetcherFunc[string, []string](tt.fetch), time.Minute)
			got, err := cache.Get(t.Context(), "jackets")
			if tt.wantErr == nil && err != nil {
				t.Fatal(err)
			} else if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("unexpected error: %v (expected: %v)", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantValue, got); diff != "" {
				t.Errorf("unexpected value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoCache_SingleFlight(t *testing.T) {
	t.Parallel()

	const numGoroutines = 10

	var calls atomic.Int32
	release := make(chan struct{})
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, []string](func(_ context.Context, key string) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"Jacket A", "Jacket B"}, nil
	}), 10*time.Minute)

	results := make([][]string, numGoroutines)
	var g errgroup.Group
	for i := 0; i < numGoroutines; i++ {
		g.Go(func() (err error) {
			results[i], err = cache.Get(t.Context(), "jackets")
			return
		})
	}

	waitFor(t, func() bool { return waiters(cache) == numGoroutines })
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("expected fetcher to be called once, but it was called %d times", n)
	}
	for i, got := range results {
		if diff := cmp.Diff([]string{"Jacket A", "Jacket B"}, got); diff != "" {
			t.Errorf("goroutine %d: unexpected value (-want +got):\n%s", i, diff)
		}
	}

	stats := cache.Stats()
	if stats.Misses != 1 || stats.Shared != numGoroutines-1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMemoCache_SingleFlight_Error(t *testing.T) {
	t.Parallel()

	const numGoroutines = 5

	fetchErr := errors.New("malformed page")
	var calls atomic.Int32
	release := make(chan struct{})
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		calls.Add(1)
		<-release
		return 0, fetchErr
	}), time.Minute)

	errs := make([]error, numGoroutines)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Get(t.Context(), "shirts")
		}()
	}

	waitFor(t, func() bool { return waiters(cache) == numGoroutines })
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected fetcher to be called once, but it was called %d times", n)
	}
	for i, err := range errs {
		if err != fetchErr {
			t.Errorf("goroutine %d: unexpected error: %v (expected: %v)", i, err, fetchErr)
		}
	}
	if got := cache.Stats().Failures; got != 1 {
		t.Errorf("expected 1 failure, got %d", got)
	}
}

func TestMemoCache_TTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var calls atomic.Int32
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	}), 10*time.Minute, openaio.WithClock[string, int](clock))

	steps := []struct {
		name      string
		advance   time.Duration
		wantValue int
	}{
		{name: "first call fetches", advance: 0, wantValue: 1},
		{name: "served from cache", advance: 5 * time.Minute, wantValue: 1},
		{name: "served until the last instant", advance: 5*time.Minute - time.Nanosecond, wantValue: 1},
		{name: "stale at expiry", advance: time.Nanosecond, wantValue: 2},
		{name: "new value is fresh", advance: 9 * time.Minute, wantValue: 2},
	}
	for _, step := range steps {
		clock.Advance(step.advance)
		got, err := cache.Get(t.Context(), "bags")
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got != step.wantValue {
			t.Errorf("%s: unexpected value: %d (expected: %d)", step.name, got, step.wantValue)
		}
	}
}

func TestMemoCache_ZeroTTL(t *testing.T) {
	t.Parallel()

	for _, ttl := range []time.Duration{0, -time.Second} {
		var calls atomic.Int32
		cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
			return int(calls.Add(1)), nil
		}), ttl)

		for i := 1; i <= 3; i++ {
			got, err := cache.Get(t.Context(), "hats")
			if err != nil {
				t.Fatal(err)
			}
			if got != i {
				t.Errorf("ttl=%s: unexpected value: %d (expected: %d)", ttl, got, i)
			}
		}
		if hits := cache.Stats().Hits; hits != 0 {
			t.Errorf("ttl=%s: expected no hits, got %d", ttl, hits)
		}
	}
}

func TestMemoCache_FailureKeepsValue(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	fetchErr := errors.New("upstream unreachable")

	var (
		mu    sync.Mutex
		calls int
		fail  bool
	)
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, string](func(context.Context, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if fail {
			return "", fetchErr
		}
		return "v" + string(rune('0'+calls)), nil
	}), 10*time.Minute, openaio.WithClock[string, string](clock))
	setFail := func(v bool) {
		mu.Lock()
		defer mu.Unlock()
		fail = v
	}

	if got, err := cache.Get(t.Context(), "tops"); err != nil || got != "v1" {
		t.Fatalf("unexpected result: %q, %v", got, err)
	}

	// the value is stale, so the failing fetch runs
	clock.Advance(11 * time.Minute)
	setFail(true)
	if _, err := cache.Get(t.Context(), "tops"); err != fetchErr {
		t.Fatalf("unexpected error: %v (expected: %v)", err, fetchErr)
	}

	// the failure neither refreshed the entry nor poisoned it: the next call fetches again
	setFail(false)
	got, err := cache.Get(t.Context(), "tops")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v3" {
		t.Errorf("unexpected value: %q (expected: v3)", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 fetches, got %d", calls)
	}
}

func TestMemoCache_FailureOnEmptyEntry(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("connection refused")
	var calls atomic.Int32
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, string](func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", fetchErr
		}
		return "ok", nil
	}), time.Hour)

	if _, err := cache.Get(t.Context(), "skate"); err != fetchErr {
		t.Fatalf("unexpected error: %v (expected: %v)", err, fetchErr)
	}
	got, err := cache.Get(t.Context(), "skate")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("unexpected value: %q", got)
	}
	if _, err := cache.Get(t.Context(), "skate"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 fetches, got %d", n)
	}
}

func TestMemoCache_KeyIsolation(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var mu sync.Mutex
	calls := map[string]int{}
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(_ context.Context, key string) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[key]++
		if key == "broken" {
			return 0, errors.New("broken")
		}
		return calls[key], nil
	}), 10*time.Minute, openaio.WithClock[string, int](clock))

	if _, err := cache.Get(t.Context(), "a"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(6 * time.Minute)
	if _, err := cache.Get(t.Context(), "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(t.Context(), "broken"); err == nil {
		t.Fatal("expected an error")
	}

	// a expires, b does not
	clock.Advance(5 * time.Minute)
	if got, _ := cache.Get(t.Context(), "a"); got != 2 {
		t.Errorf("expected a to be fetched again, got %d", got)
	}
	if got, _ := cache.Get(t.Context(), "b"); got != 1 {
		t.Errorf("expected b to be served from cache, got %d", got)
	}

	want := map[string]int{"a": 2, "b": 1, "broken": 1}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("unexpected calls (-want +got):\n%s", diff)
	}
}

func TestMemoCache_IndependentInstances(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetcher := openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		return int(calls.Add(1)), nil
	})
	first := openaio.NewMemoCache(fetcher, time.Hour)
	second := openaio.NewMemoCache(fetcher, time.Hour)

	a, _ := first.Get(t.Context(), "k")
	b, _ := second.Get(t.Context(), "k")
	if a == b {
		t.Errorf("instances must not share entries: both returned %d", a)
	}
	if again, _ := first.Get(t.Context(), "k"); again != a {
		t.Errorf("unexpected value from first instance: %d (expected: %d)", again, a)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 fetches, got %d", n)
	}
}

func TestMemoCache_NoKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cache := openaio.NewMemoCache(openaio.NoArg(func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"jackets", "shirts"}, nil
	}), time.Minute)

	for i := 0; i < 3; i++ {
		got, err := cache.Get(t.Context(), openaio.NoKey{})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"jackets", "shirts"}, got); diff != "" {
			t.Errorf("unexpected value (-want +got):\n%s", diff)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	if entries := cache.Stats().Entries; entries != 1 {
		t.Errorf("expected a single entry, got %d", entries)
	}
}

func TestMemoCache_ContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, string](func(ctx context.Context, _ string) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchCtxErr.Store(err)
		}
		return "value", nil
	}), time.Hour)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v (expected: context deadline exceeded)", err)
	}

	// the abandoned fetch still completes and fills the entry
	done := make(chan string)
	go func() {
		v, _ := cache.Get(t.Context(), "k")
		done <- v
	}()
	waitFor(t, func() bool { return waiters(cache) == 2 })
	close(release)
	if got := <-done; got != "value" {
		t.Errorf("unexpected value: %q", got)
	}
	if err := fetchCtxErr.Load(); err != nil {
		t.Errorf("fetch must not run with the caller context: %v", err)
	}
	if got, err := cache.Get(t.Context(), "k"); err != nil || got != "value" {
		t.Errorf("unexpected result: %q, %v", got, err)
	}
	if misses := cache.Stats().Misses; misses != 1 {
		t.Errorf("expected 1 miss, got %d", misses)
	}
}

// A fetch that never returns blocks its waiters: the cache adds no timeout of its own.
func TestMemoCache_HungFetchBlocksWaiters(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		<-release
		return 1, nil
	}), time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.Get(context.Background(), "k")
	}()

	select {
	case <-done:
		t.Fatal("Get returned while the fetch was still running")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after the fetch completed")
	}
}

func TestMemoCache_Panic(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		if calls.Add(1) == 1 {
			panic("nil selection")
		}
		return 7, nil
	}), time.Hour)

	_, err := cache.Get(t.Context(), "k")
	var recovered *panics.ErrRecovered
	if !errors.As(err, &recovered) {
		t.Fatalf("expected *panics.ErrRecovered, got: %T (%v)", err, err)
	}
	if recovered.Value != "nil selection" {
		t.Errorf("unexpected panic value: %v", recovered.Value)
	}

	if got, err := cache.Get(t.Context(), "k"); err != nil || got != 7 {
		t.Errorf("unexpected result after panic: %d, %v", got, err)
	}
}

func TestMemoCache_Goexit(t *testing.T) {
	t.Parallel()

	cache := openaio.NewMemoCache(openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
		runtime.Goexit()
		return 0, nil
	}), time.Hour)

	var wg sync.WaitGroup
	var returned atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cache.Get(context.Background(), "k")
		returned.Store(true)
	}()
	wg.Wait()

	if returned.Load() {
		t.Error("Get must call runtime.Goexit when the fetch did")
	}
	if got := cache.Stats().Failures; got != 1 {
		t.Errorf("expected 1 failure, got %d", got)
	}
}

func TestMemoCache_Cloner(t *testing.T) {
	t.Parallel()

	cache := openaio.NewMemoCache(
		openaio.FetcherFunc[string, []string](func(context.Context, string) ([]string, error) {
			return []string{"Box Logo", "Tee"}, nil
		}),
		time.Hour,
		openaio.WithCloner[string](openaio.SliceCloner[[]string]()),
	)

	first, err := cache.Get(t.Context(), "k")
	if err != nil {
		t.Fatal(err)
	}
	first[0] = "changed"

	second, err := cache.Get(t.Context(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Box Logo", "Tee"}, second); diff != "" {
		t.Errorf("cached value was modified through a returned value (-want +got):\n%s", diff)
	}
}

func TestMemoCache_Stats(t *testing.T) {
	t.Parallel()

	cache := openaio.NewMemoCache(
		openaio.FetcherFunc[int, int](func(_ context.Context, key int) (int, error) {
			if key < 0 {
				return 0, errors.New("negative")
			}
			return key * 2, nil
		}),
		time.Hour,
		openaio.WithName[int, int]("doubler"),
		openaio.WithBucketsSize[int, int](4),
	)

	for _, key := range []int{1, 2, 1, 1, -1} {
		_, _ = cache.Get(t.Context(), key)
	}

	want := openaio.Stats{
		Name:     "doubler",
		Hits:     2,
		Misses:   3,
		Failures: 1,
		Entries:  3,
	}
	if diff := cmp.Diff(want, cache.Stats()); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}
}

func TestWithBucketsSize_Invalid(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a non-positive bucket count")
		}
	}()
	openaio.WithBucketsSize[string, int](0)
}

func TestMemoCache_SingleBucketAnyKey(t *testing.T) {
	t.Parallel()

	type pair struct{ a, b string }
	cache := openaio.NewMemoCache(
		openaio.FetcherFunc[pair, string](func(_ context.Context, p pair) (string, error) {
			return p.a + p.b, nil
		}),
		time.Hour,
		openaio.WithBucketsSize[pair, string](1),
	)
	got, err := cache.Get(t.Context(), pair{"box", "logo"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "boxlogo" {
		t.Errorf("unexpected value: %q", got)
	}
}

func doublingGet() func(int) (int, error) {
	type key int
	c := openaio.NewMemoCache(openaio.FetcherFunc[key, int](func(_ context.Context, k key) (int, error) {
		return int(k) * 2, nil
	}), time.Hour)
	return func(v int) (int, error) {
		return c.Get(context.Background(), key(v))
	}
}

func echoGet() func(string) (string, error) {
	type key string
	c := openaio.NewMemoCache(openaio.FetcherFunc[key, string](func(_ context.Context, k key) (string, error) {
		return string(k), nil
	}), time.Hour)
	return func(v string) (string, error) {
		return c.Get(context.Background(), key(v))
	}
}

// Local key types with the same name must not share a bucket hash.
func TestMemoCache_SameNamedKeyTypes(t *testing.T) {
	t.Parallel()

	double := doublingGet()
	echo := echoGet()

	if got, err := double(21); err != nil || got != 42 {
		t.Errorf("unexpected result: %d, %v", got, err)
	}
	if got, err := echo("jackets"); err != nil || got != "jackets" {
		t.Errorf("unexpected result: %q, %v", got, err)
	}
}

func TestMemoCache_PanickingCloner(t *testing.T) {
	t.Parallel()

	cache := openaio.NewMemoCache(
		openaio.FetcherFunc[string, int](func(context.Context, string) (int, error) {
			return 7, nil
		}),
		time.Hour,
		openaio.WithCloner[string](openaio.ValueClonerFunc[int](func(int) int {
			panic("broken cloner")
		})),
	)

	_, err := cache.Get(t.Context(), "k")
	var recovered *panics.ErrRecovered
	if !errors.As(err, &recovered) {
		t.Fatalf("expected *panics.ErrRecovered, got: %T (%v)", err, err)
	}
	if recovered.Value != "broken cloner" {
		t.Errorf("unexpected panic value: %v", recovered.Value)
	}
	if got := cache.Stats().Entries; got != 1 {
		t.Errorf("expected the fetched value to be kept, got %d entries", got)
	}
}
