package openaio

import (
	"context"
)

// KeyConstraint is an interface for key constraints.
type KeyConstraint interface {
	comparable
}

// ValueConstraint is an interface for value constraints.
type ValueConstraint interface {
	any
}

// Fetcher is the expensive operation wrapped by a MemoCache.
// Implementations are usually network bound and may fail.
type Fetcher[K KeyConstraint, V ValueConstraint] interface {
	// Fetch retrieves the current value for the given key.
	Fetch(context.Context, K) (V, error)
}

// FetcherFunc is a function type that implements the Fetcher interface.
type FetcherFunc[K KeyConstraint, V ValueConstraint] func(context.Context, K) (V, error)

var _ Fetcher[uint8, struct{}] = (FetcherFunc[uint8, struct{}])(nil)

// Fetch calls the function.
func (f FetcherFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	return f(ctx, key)
}

// NoKey is the key type of caches wrapping fetch functions that take no argument.
// All calls use the zero value, so they share a single entry.
type NoKey struct{}

// NoArg adapts a fetch function without argument to a Fetcher keyed by NoKey.
func NoArg[V ValueConstraint](f func(context.Context) (V, error)) FetcherFunc[NoKey, V] {
	return func(ctx context.Context, _ NoKey) (V, error) {
		return f(ctx)
	}
}
