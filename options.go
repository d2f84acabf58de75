package openaio

import (
	"context"

	"github.com/apex/log"

	"github.com/vasialek/openaio-api/internal/keyhash"
)

// DefaultBucketsSize is the default number of entry buckets of a MemoCache.
var DefaultBucketsSize = 16

// Option is the interface for the options of the MemoCache.
type Option[K KeyConstraint, V ValueConstraint] interface {
	apply(*options[K, V])
}

type optionFunc[K KeyConstraint, V ValueConstraint] func(*options[K, V])

func (f optionFunc[K, V]) apply(o *options[K, V]) {
	f(o)
}

// WithClock sets the clock used to compute and check expiration times.
func WithClock[K KeyConstraint, V ValueConstraint](clock Clock) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.clock = clock
	})
}

// WithCloner sets the value cloner.
// The default is DefaultValueCloner.
func WithCloner[K KeyConstraint, V ValueConstraint](cloner ValueCloner[V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.cloner = cloner
	})
}

// WithBucketsSize sets the number of entry buckets.
// The number of buckets must be a natural number.
// With a single bucket the key type does not need to be hashable by this package.
func WithBucketsSize[K KeyConstraint, V ValueConstraint](bucketsSize int) Option[K, V] {
	if bucketsSize <= 0 {
		panic("bucketsSize must be natural number")
	}
	return optionFunc[K, V](func(o *options[K, V]) {
		o.bucketsSize = bucketsSize
	})
}

// WithKeyHash sets the function used to pick the bucket of a key.
func WithKeyHash[K KeyConstraint, V ValueConstraint](f func(K) int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.hashKey = f
	})
}

// WithBackgroundContextProvider sets the provider of the context passed to the fetcher.
// Fetches are shared between callers, so they never run with a caller's context.
// The provider must return a new context for each call.
// The default context provider is context.Background.
func WithBackgroundContextProvider[K KeyConstraint, V ValueConstraint](provider func() context.Context) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.context = provider
	})
}

// WithLogger sets the logger. The default is the apex/log package logger.
func WithLogger[K KeyConstraint, V ValueConstraint](logger log.Interface) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.logger = logger
	})
}

// WithName names the cache in logs and stats.
func WithName[K KeyConstraint, V ValueConstraint](name string) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.name = name
	})
}

type options[K KeyConstraint, V ValueConstraint] struct {
	clock       Clock
	cloner      ValueCloner[V]
	bucketsSize int
	hashKey     func(K) int
	context     func() context.Context
	logger      log.Interface
	name        string
}

func defaultOptions[K KeyConstraint, V ValueConstraint]() options[K, V] {
	return options[K, V]{
		clock:       SystemClock,
		cloner:      DefaultValueCloner[V](),
		bucketsSize: DefaultBucketsSize,
		context:     context.Background,
		logger:      log.Log,
	}
}

// resolveKeyHash fills in the default key hash, which only buckets need.
func (o *options[K, V]) resolveKeyHash() {
	if o.hashKey == nil && o.bucketsSize > 1 {
		o.hashKey = keyhash.For[K]()
	}
}
