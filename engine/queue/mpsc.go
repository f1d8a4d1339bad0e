package queue

import "sync/atomic"

type cell[T any] struct {
	seq uint64
	val T
}

// MPSC is a bounded multi-producer single-consumer ring. Producers reserve
// a cell by advancing head with CAS and publish it through the cell's
// sequence number, so the consumer never observes a reserved-but-unwritten
// cell.
type MPSC[T any] struct {
	head uint64
	_    [cacheLine - 8]byte
	tail uint64
	_    [cacheLine - 8]byte
	buf  []cell[T]
	mask uint64
}

// NewMPSC allocates a ring with the given capacity, which must be a power
// of two.
func NewMPSC[T any](size uint64) *MPSC[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("queue: ring size must be a power of two")
	}
	q := &MPSC[T]{
		buf:  make([]cell[T], size),
		mask: size - 1,
	}
	for i := range q.buf {
		q.buf[i].seq = uint64(i)
	}
	return q
}

// Push enqueues v, reporting false if the ring is full. Safe to call from
// any number of producer goroutines.
func (q *MPSC[T]) Push(v T) bool {
	for {
		h := atomic.LoadUint64(&q.head)
		c := &q.buf[h&q.mask]
		seq := atomic.LoadUint64(&c.seq)
		switch {
		case seq == h:
			if atomic.CompareAndSwapUint64(&q.head, h, h+1) {
				c.val = v
				atomic.StoreUint64(&c.seq, h+1)
				return true
			}
		case seq < h:
			// Cell not yet consumed from the previous lap: full.
			return false
		}
		// Lost the race to another producer; reload and retry.
	}
}

// Poll dequeues the oldest element, reporting false if the ring is empty.
// Must only be called from the single consumer goroutine.
func (q *MPSC[T]) Poll() (T, bool) {
	var zero T
	t := atomic.LoadUint64(&q.tail)
	c := &q.buf[t&q.mask]
	seq := atomic.LoadUint64(&c.seq)
	if seq != t+1 {
		return zero, false
	}
	v := c.val
	c.val = zero
	atomic.StoreUint64(&c.seq, t+uint64(len(q.buf)))
	atomic.StoreUint64(&q.tail, t+1)
	return v, true
}

// Len returns the approximate number of queued elements.
func (q *MPSC[T]) Len() int {
	h := atomic.LoadUint64(&q.head)
	t := atomic.LoadUint64(&q.tail)
	return int(h - t)
}

// Cap returns the ring capacity.
func (q *MPSC[T]) Cap() int { return len(q.buf) }
