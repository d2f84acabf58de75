package openaio

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/apex/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/vasialek/openaio-api/internal/panicutil"
)

var errGoexit = errors.New("runtime.Goexit is called")

// MemoCache memoizes the results of a Fetcher for a fixed TTL.
// Concurrent Get calls for a key that is missing or stale share a single fetch.
// A MemoCache must be created with NewMemoCache and lives as long as its owner;
// it never drops entries.
type MemoCache[K KeyConstraint, V ValueConstraint] struct {
	fetcher Fetcher[K, V]
	ttl     time.Duration
	options options[K, V]
	table   *entryTable[K, V]
	stats   counters
}

// NewMemoCache creates a cache around the fetcher.
// A successful fetch is served from the cache until ttl has passed since it completed.
// A ttl of zero or less makes every Get fetch.
func NewMemoCache[K KeyConstraint, V ValueConstraint](fetcher Fetcher[K, V], ttl time.Duration, opts ...Option[K, V]) *MemoCache[K, V] {
	o := defaultOptions[K, V]()
	for _, opt := range opts {
		opt.apply(&o)
	}
	o.resolveKeyHash()

	return &MemoCache[K, V]{
		fetcher: fetcher,
		ttl:     ttl,
		options: o,
		table:   newEntryTable[K, V](o.bucketsSize, o.hashKey),
	}
}

// TTL returns the time a fetched value stays fresh.
func (c *MemoCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for the key.
// A fresh value is returned right away. Otherwise Get waits for a fetch: the one
// already running for the key, or a new one it starts. Every caller waiting on the
// same fetch gets its value or its error.
//
// A failed fetch leaves the previous value and expiration time untouched, and the
// next Get fetches again. The fetch itself does not see ctx; when ctx is done
// Get returns ctx.Err() and the fetch goes on for the other callers.
func (c *MemoCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	b := c.table.resolveBucket(key)
	if v, ok := c.lookup(b, key); ok {
		return v, nil
	}

	ch, v, ok := c.registerKey(b, key)
	if ok {
		return v, nil
	}

	select {
	case r := <-ch:
		if r.err != nil {
			if r.err == errGoexit {
				runtime.Goexit()
			}
			var zero V
			return zero, r.err
		}
		return r.value, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (c *MemoCache[K, V]) Stats() Stats {
	return Stats{
		Name:     c.options.name,
		Hits:     c.stats.hits.Load(),
		Misses:   c.stats.misses.Load(),
		Shared:   c.stats.shared.Load(),
		Failures: c.stats.failures.Load(),
		Entries:  c.table.len(),
	}
}

// fresh reports whether the entry holds a value that may be served.
// It must be called with the bucket lock held.
func (c *MemoCache[K, V]) fresh(e *entry[V]) bool {
	if c.ttl <= 0 || e.expiresAt.IsZero() {
		return false
	}
	return c.options.clock.Now().Before(e.expiresAt)
}

// lookup returns the value of a fresh entry.
func (c *MemoCache[K, V]) lookup(b *bucket[K, V], key K) (V, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.entries[key]; ok && c.fresh(e) {
		c.stats.hits.Add(1)
		return c.options.cloner.CloneValue(e.value), true
	}
	var zero V
	return zero, false
}

// registerKey either returns a value that became fresh since lookup, or
// registers the caller as a waiter and returns the channel to receive the result on.
// The caller that registers first on an idle entry starts the fetch.
func (c *MemoCache[K, V]) registerKey(b *bucket[K, V], key K) (chan result[V], V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &entry[V]{}
		b.entries[key] = e
	} else if c.fresh(e) {
		c.stats.hits.Add(1)
		return nil, c.options.cloner.CloneValue(e.value), true
	}

	ch := make(chan result[V], 1)
	e.waitlist = append(e.waitlist, ch)
	if len(e.waitlist) == 1 {
		c.stats.misses.Add(1)
		go c.fetchAndStore(c.options.context(), b, key)
	} else {
		c.stats.shared.Add(1)
	}

	var zero V
	return ch, zero, false
}

// fetchAndStore runs the fetcher and publishes its outcome to the entry and its waiters.
func (c *MemoCache[K, V]) fetchAndStore(ctx context.Context, b *bucket[K, V], key K) {
	logger := c.options.logger.WithFields(log.Fields{
		"cache": c.options.name,
		"key":   key,
	})
	logger.Debug("fetching")

	guard := panicutil.Guard{
		OnPanic: func(r *panics.Recovered) {
			logger.WithField("stack", string(r.Stack)).Errorf("fetch panicked: %v", r.Value)
		},
		OnGoexit: func() {
			c.stats.failures.Add(1)
			c.publish(b, key, result[V]{err: errGoexit})
		},
	}

	var value V
	if err := guard.Run(func() (err error) {
		value, err = c.fetcher.Fetch(ctx, key)
		return
	}); err != nil {
		c.stats.failures.Add(1)
		logger.WithError(err).Warn("fetch failed")
		c.publish(b, key, result[V]{err: err})
		return
	}

	c.publish(b, key, result[V]{value: value})
}

// publish stores a successful value and sends the result to every waiter of the entry.
// Values are cloned after the bucket lock is released; a panicking cloner
// fails only the waiter it was cloning for.
func (c *MemoCache[K, V]) publish(b *bucket[K, V], key K, r result[V]) {
	b.mu.Lock()
	e := b.entries[key]
	if r.err == nil {
		e.value = r.value
		e.expiresAt = c.options.clock.Now().Add(c.ttl)
	}
	waitlist := e.waitlist
	e.waitlist = nil
	b.mu.Unlock()

	for _, ch := range waitlist {
		ch <- c.cloneResult(r)
		close(ch)
	}
}

func (c *MemoCache[K, V]) cloneResult(r result[V]) result[V] {
	if r.err != nil {
		return r
	}
	var out result[V]
	out.err = panicutil.Run(func() error {
		out.value = c.options.cloner.CloneValue(r.value)
		return nil
	})
	return out
}
