// Package queue provides the bounded lock-free rings used for all
// cross-thread handoff in the engine. Push never blocks the producer and
// Poll never blocks the consumer; both report success instead.
package queue

import "sync/atomic"

const cacheLine = 64

// SPSC is a single-producer single-consumer ring. head and tail sit on
// separate cache lines to avoid false sharing between the two threads.
type SPSC[T any] struct {
	head uint64
	_    [cacheLine - 8]byte
	tail uint64
	_    [cacheLine - 8]byte
	buf  []T
	mask uint64
}

// NewSPSC allocates a ring with the given capacity, which must be a power
// of two.
func NewSPSC[T any](size uint64) *SPSC[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("queue: ring size must be a power of two")
	}
	return &SPSC[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}
}

// Push enqueues v, reporting false if the ring is full.
func (q *SPSC[T]) Push(v T) bool {
	h := atomic.LoadUint64(&q.head)
	t := atomic.LoadUint64(&q.tail)
	if h-t == uint64(len(q.buf)) {
		return false
	}
	q.buf[h&q.mask] = v
	atomic.StoreUint64(&q.head, h+1)
	return true
}

// Poll dequeues the oldest element, reporting false if the ring is empty.
func (q *SPSC[T]) Poll() (T, bool) {
	var zero T
	t := atomic.LoadUint64(&q.tail)
	h := atomic.LoadUint64(&q.head)
	if t == h {
		return zero, false
	}
	v := q.buf[t&q.mask]
	q.buf[t&q.mask] = zero
	atomic.StoreUint64(&q.tail, t+1)
	return v, true
}

// Len returns the number of queued elements. It is advisory when read from
// a thread other than the consumer.
func (q *SPSC[T]) Len() int {
	h := atomic.LoadUint64(&q.head)
	t := atomic.LoadUint64(&q.tail)
	return int(h - t)
}

// Cap returns the ring capacity.
func (q *SPSC[T]) Cap() int { return len(q.buf) }
