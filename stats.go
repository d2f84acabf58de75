package openaio

import "sync/atomic"

// Stats is a snapshot of the counters of a MemoCache.
type Stats struct {
	// Name is the name given with WithName.
	Name string `json:"name"`

	// Hits counts Get calls answered from a fresh entry.
	Hits uint64 `json:"hits"`

	// Misses counts Get calls that started a fetch.
	Misses uint64 `json:"misses"`

	// Shared counts Get calls that waited for a fetch started by another call.
	Shared uint64 `json:"shared"`

	// Failures counts fetches that ended with an error, a panic or runtime.Goexit.
	Failures uint64 `json:"failures"`

	// Entries is the number of keys the cache holds state for.
	Entries int `json:"entries"`
}

type counters struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	shared   atomic.Uint64
	failures atomic.Uint64
}
