// Package engine runs the per-book processing threads and the distributor
// that routes traffic between them. Every loop in this package busy-polls:
// nothing blocks, sleeps or waits on a condition variable in steady state,
// trading CPU occupancy for a flat latency floor.
package engine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/umarfq/bookline/domain/book"
	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/engine/queue"
	"github.com/umarfq/bookline/infra/memory"
)

// Config bounds the fairness budget of a processor's two-phase loop and
// sizes its rings.
type Config struct {
	// MDRingSize, RequestRingSize and ResponseRingSize are ring
	// capacities; they must be powers of two.
	MDRingSize       uint64
	RequestRingSize  uint64
	ResponseRingSize uint64

	// MaxPendingMarketData is the market data backlog past which the
	// analytics phase yields back to the market data phase, and vice
	// versa for MaxPendingRequests.
	MaxPendingMarketData int
	MaxPendingRequests   int

	// MaxWait is the longest either phase may run while the other has
	// pending work.
	MaxWait time.Duration

	// PushAttempts and PushPause bound the retry applied when a full
	// ring rejects a push. After the attempts are exhausted the element
	// is dropped and counted, never silently.
	PushAttempts int
	PushPause    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MDRingSize == 0 {
		c.MDRingSize = 1 << 14
	}
	if c.RequestRingSize == 0 {
		c.RequestRingSize = 1 << 12
	}
	if c.ResponseRingSize == 0 {
		c.ResponseRingSize = 1 << 12
	}
	if c.MaxPendingMarketData == 0 {
		c.MaxPendingMarketData = 100
	}
	if c.MaxPendingRequests == 0 {
		c.MaxPendingRequests = 100
	}
	if c.MaxWait == 0 {
		c.MaxWait = 20 * time.Microsecond
	}
	if c.PushAttempts == 0 {
		c.PushAttempts = 3
	}
	if c.PushPause == 0 {
		c.PushPause = 100 * time.Microsecond
	}
	return c
}

// Processor owns one (instrument, side) book. A single dedicated goroutine,
// pinned to its OS thread, is the only mutator of the ladder; all input and
// output crosses through the processor's rings.
type Processor struct {
	key    market.BookKey
	cfg    Config
	ladder *book.Ladder
	pool   *memory.Pool[market.Message]
	paired *Processor

	mdIn    *queue.SPSC[*market.Message]
	reqIn   *queue.SPSC[*market.Request]
	respOut *queue.SPSC[*market.Request]

	priceCache map[int]float64
	vwapCache  map[int]float64
	qtyCache   map[int]int64

	running  atomic.Bool
	done     chan struct{}
	log      *zap.Logger
	applied  prometheus.Counter
	rejected prometheus.Counter
	served   prometheus.Counter
	hits     prometheus.Counter
	dropped  prometheus.Counter
	depth    prometheus.Gauge
}

// NewProcessor builds a stopped processor for one side of one instrument.
func NewProcessor(key market.BookKey, cfg Config, pool *memory.Pool[market.Message], log *zap.Logger, m *Metrics) *Processor {
	cfg = cfg.withDefaults()
	inst, side := key.Instrument, key.Side.String()
	return &Processor{
		key:        key,
		cfg:        cfg,
		ladder:     book.NewLadder(key.Side, 1024),
		pool:       pool,
		mdIn:       queue.NewSPSC[*market.Message](cfg.MDRingSize),
		reqIn:      queue.NewSPSC[*market.Request](cfg.RequestRingSize),
		respOut:    queue.NewSPSC[*market.Request](cfg.ResponseRingSize),
		priceCache: make(map[int]float64),
		vwapCache:  make(map[int]float64),
		qtyCache:   make(map[int]int64),
		log:        log.With(zap.String("book", key.String())),
		applied:    m.MessagesApplied.WithLabelValues(inst, side),
		rejected:   m.CrossingsRejected.WithLabelValues(inst, side),
		served:     m.RequestsServed.WithLabelValues(inst, side),
		hits:       m.CacheHits.WithLabelValues(inst, side),
		dropped:    m.ResponsesDropped.WithLabelValues(inst, side),
		depth:      m.BookDepth.WithLabelValues(inst, side),
	}
}

// Key returns the processor's routing key.
func (p *Processor) Key() market.BookKey { return p.key }

// Pair links this processor with the opposite side of the same instrument,
// enabling the crossing check. Must be called before Start.
func (p *Processor) Pair(opposite *Processor) { p.paired = opposite }

// SubmitMarketData offers a message to the inbound market data ring.
func (p *Processor) SubmitMarketData(m *market.Message) bool { return p.mdIn.Push(m) }

// SubmitRequest offers an analytics request to the inbound request ring.
func (p *Processor) SubmitRequest(r *market.Request) bool { return p.reqIn.Push(r) }

// PollResponse drains one completed request from the response ring.
func (p *Processor) PollResponse() (*market.Request, bool) { return p.respOut.Poll() }

// TopOfBook returns the best price as a decimal, or 0 for an empty book.
func (p *Processor) TopOfBook() float64 {
	best, ok := p.ladder.BestPrice()
	if !ok {
		return 0
	}
	return float64(best) / 100
}

// Start launches the processing thread. Starting a running processor is a
// no-op.
func (p *Processor) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.done = make(chan struct{})
	go p.run()
}

// Stop halts the processing thread and waits for it to exit. In-flight
// queue contents are abandoned.
func (p *Processor) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	<-p.done
}

// run alternates between the market data phase and the analytics phase.
// Each phase drains its ring until it is empty, the other side's backlog
// exceeds its budget, or the other side has waited past MaxWait. The loop
// never blocks; it yields the OS thread only when a full round found no
// work at all.
func (p *Processor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)

	p.log.Info("book processor started")

	maxWait := p.cfg.MaxWait.Nanoseconds()
	now := time.Now().UnixNano()
	lastUpdate, lastService := now, now

	for p.running.Load() {
		worked := false
		mutated := false

		for {
			m, ok := p.mdIn.Poll()
			if !ok {
				break
			}
			worked = true
			if p.apply(m) {
				mutated = true
			}
			lastUpdate = time.Now().UnixNano()
			if p.reqIn.Len() > p.cfg.MaxPendingRequests || timeUp(lastService, p.reqIn.Len(), maxWait) {
				break
			}
		}

		if mutated {
			p.invalidateCaches()
		}

		for {
			r, ok := p.reqIn.Poll()
			if !ok {
				break
			}
			worked = true
			p.serve(r)
			lastService = time.Now().UnixNano()
			if !offer(func() bool { return p.respOut.Push(r) }, p.cfg.PushAttempts, p.cfg.PushPause) {
				p.dropped.Inc()
				p.log.Error("response ring full, dropping response", zap.Uint64("id", r.ID))
			}
			if p.mdIn.Len() > p.cfg.MaxPendingMarketData || timeUp(lastUpdate, p.mdIn.Len(), maxWait) {
				break
			}
		}

		if !worked {
			runtime.Gosched()
		}
	}

	p.log.Info("book processor stopped")
}

func timeUp(last int64, pending int, maxWait int64) bool {
	return pending > 0 && time.Now().UnixNano()-last > maxWait
}

// apply consumes one market data message, returning it to the pool, and
// reports whether the book changed.
func (p *Processor) apply(m *market.Message) bool {
	kind, price, qty := m.Kind, m.Price, m.Quantity
	p.pool.Release(m)

	switch kind {
	case market.Remove:
		if !p.ladder.Remove(price) {
			return false
		}
		p.log.Debug("removed level", zap.Int64("price", price))
	case market.Upsert:
		if !p.ladder.Contains(price) && p.crosses(price) {
			p.rejected.Inc()
			p.log.Warn("rejected crossing upsert",
				zap.Int64("price", price), zap.Int64("quantity", qty))
			return false
		}
		p.ladder.Upsert(price, qty)
		p.log.Debug("upserted level", zap.Int64("price", price), zap.Int64("quantity", qty))
	}

	p.applied.Inc()
	p.depth.Set(float64(p.ladder.Len()))
	return true
}

// crosses reports whether price would trade against the paired book's
// published top of book.
func (p *Processor) crosses(price int64) bool {
	if p.paired == nil {
		return false
	}
	best, ok := p.paired.ladder.BestPrice()
	if !ok {
		return false
	}
	if p.key.Side == market.Bid {
		return price >= best
	}
	return price <= best
}

func (p *Processor) invalidateCaches() {
	clear(p.priceCache)
	clear(p.vwapCache)
	clear(p.qtyCache)
}

// serve populates the request's result, computing the metric or fetching it
// from the per-shape cache.
func (p *Processor) serve(r *market.Request) {
	var v float64
	switch r.Kind {
	case market.AveragePrice:
		cached, ok := p.priceCache[r.Levels]
		if !ok {
			cached = p.averagePrice(r.Levels)
			p.priceCache[r.Levels] = cached
		} else {
			p.hits.Inc()
		}
		v = cached
	case market.Vwap:
		cached, ok := p.vwapCache[r.Levels]
		if !ok {
			cached = p.vwap(r.Levels)
			p.vwapCache[r.Levels] = cached
		} else {
			p.hits.Inc()
		}
		v = cached
	case market.AverageQuantity:
		cached, ok := p.qtyCache[r.Levels]
		if !ok {
			cached = p.accumulatedQuantity(r.Levels)
			p.qtyCache[r.Levels] = cached
		} else {
			p.hits.Inc()
		}
		v = float64(cached)
	}
	r.SetResult(v)
	p.served.Inc()
}

// averagePrice is the mean price of up to maxLevels levels from the top of
// book, as a decimal. The divisor is the number of levels actually visited,
// and an empty book yields 0.
func (p *Processor) averagePrice(maxLevels int) float64 {
	var total int64
	visited := 0
	p.ladder.Walk(maxLevels, func(price, _ int64) bool {
		total += price
		visited++
		return true
	})
	if visited == 0 {
		return 0
	}
	return float64(total) / (float64(visited) * 100)
}

// accumulatedQuantity sums quantity over up to maxLevels levels.
func (p *Processor) accumulatedQuantity(maxLevels int) int64 {
	var total int64
	p.ladder.Walk(maxLevels, func(_, qty int64) bool {
		total += qty
		return true
	})
	return total
}

// vwap is the quantity-weighted mean price over up to maxLevels levels, as
// a decimal; 0 when the accumulated quantity is 0.
func (p *Processor) vwap(maxLevels int) float64 {
	var weighted float64
	var qtySum int64
	p.ladder.Walk(maxLevels, func(price, qty int64) bool {
		weighted += float64(price) * float64(qty)
		qtySum += qty
		return true
	})
	if qtySum == 0 {
		return 0
	}
	return weighted / (float64(qtySum) * 100)
}

// offer retries a rejected push a bounded number of times with a short
// pause between attempts.
func offer(push func() bool, attempts int, pause time.Duration) bool {
	if push() {
		return true
	}
	for i := 0; i < attempts; i++ {
		time.Sleep(pause)
		if push() {
			return true
		}
	}
	return false
}
