package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/infra/memory"
)

func newTestPair(t *testing.T, inst string, pool *memory.Pool[market.Message], m *Metrics) (*Processor, *Processor) {
	t.Helper()
	log := zaptest.NewLogger(t)
	bid := NewProcessor(market.BookKey{Instrument: inst, Side: market.Bid}, Config{}, pool, log, m)
	offer := NewProcessor(market.BookKey{Instrument: inst, Side: market.Offer}, Config{}, pool, log, m)
	bid.Pair(offer)
	offer.Pair(bid)
	return bid, offer
}

func TestNewDistributorRejectsDuplicateBook(t *testing.T) {
	pool := memory.NewPool(func() *market.Message { return &market.Message{} })
	m := NewMetrics(prometheus.NewRegistry())
	bid, offer := newTestPair(t, "BTCUSD", pool, m)

	_, err := NewDistributor([]*Processor{bid, offer, bid}, Config{}, pool, zaptest.NewLogger(t), m)
	require.ErrorContains(t, err, "duplicate")
}

func TestNewDistributorRejectsUnpairedBook(t *testing.T) {
	pool := memory.NewPool(func() *market.Message { return &market.Message{} })
	m := NewMetrics(prometheus.NewRegistry())
	log := zaptest.NewLogger(t)
	lonely := NewProcessor(market.BookKey{Instrument: "BTCUSD", Side: market.Bid}, Config{}, pool, log, m)

	_, err := NewDistributor([]*Processor{lonely}, Config{}, pool, log, m)
	require.ErrorContains(t, err, "paired")
}

func TestDistributorRoutesAcrossBooks(t *testing.T) {
	pool := memory.NewPool(func() *market.Message { return &market.Message{} })
	m := NewMetrics(prometheus.NewRegistry())
	btcBid, btcOffer := newTestPair(t, "BTCUSD", pool, m)
	ethBid, ethOffer := newTestPair(t, "ETHUSD", pool, m)
	procs := []*Processor{btcBid, btcOffer, ethBid, ethOffer}

	d, err := NewDistributor(procs, Config{}, pool, zaptest.NewLogger(t), m)
	require.NoError(t, err)

	for _, p := range procs {
		p.Start()
		defer p.Stop()
	}
	d.Start()
	defer d.Shutdown()

	require.True(t, d.SubmitMessage(upsert(pool, "BTCUSD", market.Bid, 10000, 10)))
	require.True(t, d.SubmitMessage(upsert(pool, "ETHUSD", market.Offer, 200000, 3)))
	require.True(t, d.SubmitMessage(upsert(pool, "ETHUSD", market.Offer, 200100, 3)))

	btcReq := &market.Request{ID: 1, Instrument: "BTCUSD", Side: market.Bid, Kind: market.AveragePrice, Levels: 1}
	ethReq := &market.Request{ID: 2, Instrument: "ETHUSD", Side: market.Offer, Kind: market.AverageQuantity, Levels: 2}
	require.True(t, d.SubmitRequest(btcReq))
	require.True(t, d.SubmitRequest(ethReq))

	got := map[uint64]float64{}
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 2 {
		resp, ok := d.PollResponse()
		if !ok {
			require.False(t, time.Now().After(deadline), "timed out waiting for responses")
			time.Sleep(time.Millisecond)
			continue
		}
		v, populated := resp.Result()
		require.True(t, populated)
		got[resp.ID] = v
	}

	require.Equal(t, 100.0, got[btcReq.ID])
	require.Equal(t, 3.0, got[ethReq.ID])
}

func TestDistributorShutdownIsIdempotent(t *testing.T) {
	pool := memory.NewPool(func() *market.Message { return &market.Message{} })
	m := NewMetrics(prometheus.NewRegistry())
	bid, offer := newTestPair(t, "BTCUSD", pool, m)

	d, err := NewDistributor([]*Processor{bid, offer}, Config{}, pool, zaptest.NewLogger(t), m)
	require.NoError(t, err)

	d.Start()
	d.Shutdown()
	d.Shutdown()
}
