package openaio

import "slices"

// ValueCloner is an interface for cloning values.
// A MemoCache hands every caller the result of CloneValue instead of the value it keeps.
type ValueCloner[V ValueConstraint] interface {
	CloneValue(V) V
}

// ValueClonerFunc is a function type that implements the ValueCloner interface.
type ValueClonerFunc[V ValueConstraint] func(v V) V

// CloneValue calls the function.
func (f ValueClonerFunc[V]) CloneValue(v V) V {
	return f(v)
}

// NopValueCloner is a value cloner that does not clone values.
// Every caller receives the very value the cache holds.
type NopValueCloner[V ValueConstraint] struct{}

// CloneValue returns the input value.
func (NopValueCloner[V]) CloneValue(v V) V {
	return v
}

// SliceCloner returns a cloner that copies the slice itself but not its elements.
// Callers may reorder or append without touching the cached slice, but slices,
// maps and pointers inside the elements stay shared with it; use
// SliceClonerFunc for such element types.
func SliceCloner[S ~[]E, E any]() ValueCloner[S] {
	return ValueClonerFunc[S](func(s S) S {
		return slices.Clone(s)
	})
}

// SliceClonerFunc returns a cloner that copies the slice and every element with clone.
func SliceClonerFunc[S ~[]E, E any](clone func(E) E) ValueCloner[S] {
	return ValueClonerFunc[S](func(s S) S {
		if s == nil {
			return nil
		}
		out := make(S, len(s))
		for i, e := range s {
			out[i] = clone(e)
		}
		return out
	})
}

// DefaultValueCloner returns the cloner used when none is configured.
// It uses the Clone method of the value type if there is one,
// and a NopValueCloner otherwise.
func DefaultValueCloner[V ValueConstraint]() ValueCloner[V] {
	type cloner interface {
		Clone() V
	}

	var zero V
	if _, ok := any(zero).(cloner); ok {
		return ValueClonerFunc[V](func(v V) V {
			return any(v).(cloner).Clone()
		})
	}
	return NopValueCloner[V]{}
}
