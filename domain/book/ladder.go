// Package book holds one side of one instrument's order book: an arena of
// price level slots chained into a sorted ladder, plus the ordered price
// index over the same slots. A ladder is owned and mutated by exactly one
// goroutine; the only value published across threads is the best price.
package book

import (
	"math"
	"sync/atomic"

	"github.com/umarfq/bookline/domain/market"
)

// none marks an absent slot reference.
const none = int32(-1)

// noBest is the published best price of an empty ladder.
const noBest = math.MinInt64

// Level is the quantity resting at one price. higher and lower are arena
// slot indices recording chain adjacency; the index owns membership.
type Level struct {
	Price    int64 // fixed point, price * 100
	Quantity int64
	higher   int32
	lower    int32
}

// Ladder is the sorted price level chain for one (instrument, side) book.
// Levels live in a slot arena; freed slots are recycled through a free list,
// so steady-state mutation allocates nothing.
type Ladder struct {
	side  market.Side
	arena []Level
	free  []int32
	index *priceIndex
	top   int32
	best  atomic.Int64
}

// NewLadder returns an empty ladder with capacity slots pre-allocated. The
// arena grows on demand past that.
func NewLadder(side market.Side, capacity int) *Ladder {
	l := &Ladder{
		side:  side,
		arena: make([]Level, 0, capacity),
		free:  make([]int32, 0, capacity),
		index: newPriceIndex(),
		top:   none,
	}
	l.best.Store(noBest)
	return l
}

// Len returns the number of live price levels.
func (l *Ladder) Len() int { return l.index.Size() }

// Side returns which half of the book this ladder represents.
func (l *Ladder) Side() market.Side { return l.side }

// Contains reports whether a level exists at price.
func (l *Ladder) Contains(price int64) bool {
	_, ok := l.index.Get(price)
	return ok
}

// BestPrice returns the atomically published top-of-book price. It is the
// one ladder value safe to read from the paired side's thread.
func (l *Ladder) BestPrice() (int64, bool) {
	v := l.best.Load()
	if v == noBest {
		return 0, false
	}
	return v, true
}

// Upsert adds delta to the quantity at price, creating the level if it does
// not exist. A zero or negative resulting quantity is left in place; levels
// only leave the book through Remove. Reports whether a new level was
// created.
func (l *Ladder) Upsert(price, delta int64) bool {
	if s, ok := l.index.Get(price); ok {
		l.arena[s].Quantity += delta
		return false
	}
	s := l.alloc()
	l.arena[s] = Level{Price: price, Quantity: delta, higher: none, lower: none}
	l.index.Put(price, s)
	l.link(s)
	return true
}

// Remove deletes the level at price and splices its neighbours together.
// Removing an absent price is a no-op.
func (l *Ladder) Remove(price int64) bool {
	s, ok := l.index.Delete(price)
	if !ok {
		return false
	}
	lv := &l.arena[s]
	if lv.higher != none {
		l.arena[lv.higher].lower = lv.lower
	}
	if lv.lower != none {
		l.arena[lv.lower].higher = lv.higher
	}
	if s == l.top {
		l.top = l.worse(s)
	}
	lv.higher, lv.lower = none, none
	l.free = append(l.free, s)
	l.publishBest()
	return true
}

// Walk visits up to maxLevels levels from the best price outward, stopping
// early when fn returns false or the book runs out of levels.
func (l *Ladder) Walk(maxLevels int, fn func(price, qty int64) bool) {
	cur := l.top
	for i := 0; i < maxLevels && cur != none; i++ {
		lv := &l.arena[cur]
		if !fn(lv.Price, lv.Quantity) {
			return
		}
		cur = l.worse(cur)
	}
}

// link splices slot s into sorted position, walking from the current top of
// book toward worse prices. Most feed activity lands near the top, so the
// walk is short in practice.
func (l *Ladder) link(s int32) {
	if l.top == none {
		l.top = s
		l.publishBest()
		return
	}
	price := l.arena[s].Price
	if l.better(price, l.arena[l.top].Price) {
		l.join(s, l.top)
		l.top = s
		l.publishBest()
		return
	}
	cur := l.top
	for {
		next := l.worse(cur)
		if next == none {
			l.join(cur, s)
			return
		}
		if l.better(price, l.arena[next].Price) {
			l.join(cur, s)
			l.join(s, next)
			return
		}
		cur = next
	}
}

// join makes a the immediate better neighbour of b.
func (l *Ladder) join(a, b int32) {
	if l.side == market.Bid {
		l.arena[a].lower = b
		l.arena[b].higher = a
	} else {
		l.arena[a].higher = b
		l.arena[b].lower = a
	}
}

// worse steps one level away from the top of book.
func (l *Ladder) worse(s int32) int32 {
	if l.side == market.Bid {
		return l.arena[s].lower
	}
	return l.arena[s].higher
}

// better reports whether price a is more aggressive than b on this side.
func (l *Ladder) better(a, b int64) bool {
	if l.side == market.Bid {
		return a > b
	}
	return a < b
}

func (l *Ladder) alloc() int32 {
	if n := len(l.free); n > 0 {
		s := l.free[n-1]
		l.free = l.free[:n-1]
		return s
	}
	l.arena = append(l.arena, Level{})
	return int32(len(l.arena) - 1)
}

func (l *Ladder) publishBest() {
	if l.top == none {
		l.best.Store(noBest)
		return
	}
	l.best.Store(l.arena[l.top].Price)
}

// Ascend visits every level in ascending price order regardless of side.
// It exists for integrity checks and snapshots, not the hot path.
func (l *Ladder) Ascend(fn func(price, qty int64) bool) {
	l.index.Ascend(func(price int64, slot int32) bool {
		return fn(price, l.arena[slot].Quantity)
	})
}
