package openaio

import (
	"sync"
	"time"
)

// entry is the state of one key: the last fetched value and the waiters of the running fetch.
type entry[V ValueConstraint] struct {
	value V

	// expiresAt is zero until the first successful fetch.
	expiresAt time.Time

	// waitlist is non-empty while a fetch is in flight.
	// The first waiter is the caller that started it.
	waitlist []chan result[V]
}

type result[V ValueConstraint] struct {
	value V
	err   error
}

type bucket[K KeyConstraint, V ValueConstraint] struct {
	mu      sync.RWMutex
	entries map[K]*entry[V]
}

// entryTable spreads entries over buckets so that fetches of unrelated keys
// do not contend on one lock.
type entryTable[K KeyConstraint, V ValueConstraint] struct {
	buckets []*bucket[K, V]
	hashKey func(K) int
}

func newEntryTable[K KeyConstraint, V ValueConstraint](size int, hashKey func(K) int) *entryTable[K, V] {
	buckets := make([]*bucket[K, V], size)
	for i := range buckets {
		buckets[i] = &bucket[K, V]{entries: map[K]*entry[V]{}}
	}
	return &entryTable[K, V]{
		buckets: buckets,
		hashKey: hashKey,
	}
}

// resolveBucket returns the bucket that owns the given key.
func (t *entryTable[K, V]) resolveBucket(key K) *bucket[K, V] {
	if len(t.buckets) == 1 {
		return t.buckets[0]
	}
	index := t.hashKey(key) % len(t.buckets)
	if index < 0 {
		index *= -1
	}
	return t.buckets[index]
}

// len returns the number of keys that have an entry.
func (t *entryTable[K, V]) len() int {
	n := 0
	for _, b := range t.buckets {
		b.mu.RLock()
		n += len(b.entries)
		b.mu.RUnlock()
	}
	return n
}
