// Package memory provides object reuse for the hot-path value types so the
// mutation path stays allocation free in steady state.
package memory

import "sync"

// Pool is a typed free set. Acquire does NOT reset the instance: a reused
// object carries whatever its previous user left in it, and the caller must
// assign every field before relying on it. Release transfers ownership back
// to the pool; the releaser must not touch the instance afterwards.
type Pool[T any] struct {
	p sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	pl := &Pool[T]{}
	pl.p.New = func() any { return ctor() }
	return pl
}

func (p *Pool[T]) Acquire() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Release(v *T) {
	p.p.Put(v)
}
