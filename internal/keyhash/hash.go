// Package keyhash hashes cache keys so that entries can be spread over buckets,
// each guarded by its own lock.
package keyhash

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"sync"

	"github.com/goccy/go-reflect"
)

var (
	funcsMu sync.RWMutex
	funcs   = map[reflect.Type]func(any) int{}
)

// For returns the hash function for keys of type K.
// Functions are built once per key type and shared afterwards.
// It panics if K is not a string, integer, float, bool or zero-size struct kind.
func For[K comparable]() func(K) int {
	var zero K
	f := lookup(zero)
	return func(k K) int {
		return f(k)
	}
}

func lookup(zero any) func(any) int {
	typ := reflect.TypeOf(zero)

	funcsMu.RLock()
	f, ok := funcs[typ]
	funcsMu.RUnlock()
	if ok {
		return f
	}

	funcsMu.Lock()
	defer funcsMu.Unlock()
	if f, ok := funcs[typ]; ok {
		return f
	}
	f = build(typ)
	funcs[typ] = f
	return f
}

func build(typ reflect.Type) func(any) int {
	switch typ.Kind() {
	case reflect.String:
		return func(v any) int {
			return sum([]byte(reflect.ValueOf(v).String()))
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v any) int {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(reflect.ValueOf(v).Int()))
			return sum(b[:])
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(v any) int {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], reflect.ValueOf(v).Uint())
			return sum(b[:])
		}
	case reflect.Float32, reflect.Float64:
		return func(v any) int {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(reflect.ValueOf(v).Float()))
			return sum(b[:])
		}
	case reflect.Bool:
		return func(v any) int {
			if reflect.ValueOf(v).Bool() {
				return 1
			}
			return 0
		}
	case reflect.Struct:
		if typ.Size() == 0 {
			// every value of a zero-size type is the same key
			return func(any) int { return 0 }
		}
	}
	panic(fmt.Sprintf("keyhash: unsupported key type: %s", typ.String()))
}

var hashPool = sync.Pool{
	New: func() any {
		return fnv.New64a()
	},
}

// sum computes the FNV-1a hash of b, folded into a non-negative int.
func sum(b []byte) int {
	h := hashPool.Get().(hash.Hash64)
	defer func() {
		h.Reset()
		hashPool.Put(h)
	}()
	_, _ = h.Write(b)
	return int(h.Sum64() >> 1)
}
