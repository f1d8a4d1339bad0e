package book

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/umarfq/bookline/domain/market"
)

func chainPrices(l *Ladder) []int64 {
	var prices []int64
	l.Walk(1<<30, func(price, _ int64) bool {
		prices = append(prices, price)
		return true
	})
	return prices
}

func TestUpsertKeepsChainSorted(t *testing.T) {
	bid := NewLadder(market.Bid, 8)
	for _, p := range []int64{10000, 10200, 9900, 10100, 9800} {
		bid.Upsert(p, 1)
	}
	require.Equal(t, []int64{10200, 10100, 10000, 9900, 9800}, chainPrices(bid))

	offer := NewLadder(market.Offer, 8)
	for _, p := range []int64{10000, 9800, 10200, 9900, 10100} {
		offer.Upsert(p, 1)
	}
	require.Equal(t, []int64{9800, 9900, 10000, 10100, 10200}, chainPrices(offer))
}

func TestChainAndIndexAgree(t *testing.T) {
	l := NewLadder(market.Bid, 8)
	ops := []struct {
		remove bool
		price  int64
	}{
		{false, 500}, {false, 300}, {false, 700}, {false, 400},
		{true, 500}, {false, 600}, {true, 300}, {false, 200},
		{true, 700}, {false, 800},
	}
	for _, op := range ops {
		if op.remove {
			l.Remove(op.price)
		} else {
			l.Upsert(op.price, 5)
		}

		chain := chainPrices(l)
		require.Len(t, chain, l.Len(), "chain and index sizes diverged")
		for i := 1; i < len(chain); i++ {
			require.Greater(t, chain[i-1], chain[i], "bid chain must descend")
		}
		for _, p := range chain {
			require.True(t, l.Contains(p))
		}
	}
}

func TestUpsertAccumulatesQuantity(t *testing.T) {
	l := NewLadder(market.Offer, 8)
	require.True(t, l.Upsert(10050, 10))
	require.False(t, l.Upsert(10050, 7))
	require.Equal(t, 1, l.Len())

	var qty int64
	l.Walk(1, func(_, q int64) bool {
		qty = q
		return true
	})
	require.Equal(t, int64(17), qty)
}

func TestNegativeQuantityIsNotAutoRemoved(t *testing.T) {
	l := NewLadder(market.Bid, 8)
	l.Upsert(10000, 5)
	l.Upsert(10000, -9)
	require.Equal(t, 1, l.Len(), "non-positive quantity must stay until an explicit remove")

	var qty int64
	l.Walk(1, func(_, q int64) bool {
		qty = q
		return true
	})
	require.Equal(t, int64(-4), qty)
}

func TestRemoveSplicesNeighbours(t *testing.T) {
	l := NewLadder(market.Offer, 8)
	l.Upsert(100, 1)
	l.Upsert(200, 1)
	l.Upsert(300, 1)

	require.True(t, l.Remove(200))
	require.Equal(t, []int64{100, 300}, chainPrices(l))

	best, ok := l.BestPrice()
	require.True(t, ok)
	require.Equal(t, int64(100), best)
}

func TestRemoveAbsentPriceIsNoOp(t *testing.T) {
	l := NewLadder(market.Bid, 8)
	l.Upsert(100, 1)

	require.False(t, l.Remove(999))
	require.Equal(t, 1, l.Len())
	best, ok := l.BestPrice()
	require.True(t, ok)
	require.Equal(t, int64(100), best)
}

func TestRemoveSoleLevelEmptiesBook(t *testing.T) {
	l := NewLadder(market.Bid, 8)
	l.Upsert(100, 1)
	require.True(t, l.Remove(100))

	require.Equal(t, 0, l.Len())
	_, ok := l.BestPrice()
	require.False(t, ok)
	require.Empty(t, chainPrices(l))
}

func TestBestPriceTracksTopOfBook(t *testing.T) {
	l := NewLadder(market.Bid, 8)
	_, ok := l.BestPrice()
	require.False(t, ok)

	l.Upsert(10000, 1)
	best, _ := l.BestPrice()
	require.Equal(t, int64(10000), best)

	l.Upsert(10100, 1)
	best, _ = l.BestPrice()
	require.Equal(t, int64(10100), best, "new best must re-seat top of book")

	l.Upsert(9900, 1)
	best, _ = l.BestPrice()
	require.Equal(t, int64(10100), best, "worse price must not move top of book")

	l.Remove(10100)
	best, _ = l.BestPrice()
	require.Equal(t, int64(10000), best)
}

func TestSlotsAreRecycled(t *testing.T) {
	l := NewLadder(market.Offer, 4)
	for i := 0; i < 100; i++ {
		l.Upsert(int64(100+i), 1)
		l.Remove(int64(100 + i))
	}
	require.Equal(t, 0, l.Len())
	require.LessOrEqual(t, len(l.arena), 2, "freed slots must be reused, not appended")
}

func TestWalkStopsAtRequestedLevels(t *testing.T) {
	l := NewLadder(market.Offer, 8)
	for _, p := range []int64{100, 200, 300, 400} {
		l.Upsert(p, 1)
	}
	var seen []int64
	l.Walk(2, func(price, _ int64) bool {
		seen = append(seen, price)
		return true
	})
	require.Equal(t, []int64{100, 200}, seen)

	seen = nil
	l.Walk(10, func(price, _ int64) bool {
		seen = append(seen, price)
		return true
	})
	require.Equal(t, []int64{100, 200, 300, 400}, seen, "short book must just end early")
}
