package engine

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/engine/queue"
	"github.com/umarfq/bookline/infra/memory"
)

// Distributor demultiplexes the two shared inbound streams to the rings of
// the correct processor and multiplexes every processor's response ring
// into one shared outbound ring. It runs three independent spin loops, one
// per direction.
type Distributor struct {
	mdIn    *queue.MPSC[*market.Message]
	reqIn   *queue.MPSC[*market.Request]
	respOut *queue.SPSC[*market.Request]

	routes map[market.BookKey]*Processor
	procs  []*Processor
	pool   *memory.Pool[market.Message]
	cfg    Config

	running atomic.Bool
	wg      sync.WaitGroup
	log     *zap.Logger
	metrics *Metrics
}

// NewDistributor wires the distributor to the full set of processors. The
// routing table is validated here: every instrument must come with both
// sides, and a duplicate key is an error. A key with no processor is a
// wiring defect, not something to tolerate per message.
func NewDistributor(procs []*Processor, cfg Config, pool *memory.Pool[market.Message], log *zap.Logger, m *Metrics) (*Distributor, error) {
	cfg = cfg.withDefaults()
	routes := make(map[market.BookKey]*Processor, len(procs))
	for _, p := range procs {
		key := p.Key()
		if _, dup := routes[key]; dup {
			return nil, fmt.Errorf("distributor: duplicate processor for %s", key)
		}
		routes[key] = p
	}
	for key := range routes {
		opposite := market.BookKey{Instrument: key.Instrument, Side: market.Offer}
		if key.Side == market.Offer {
			opposite.Side = market.Bid
		}
		if _, ok := routes[opposite]; !ok {
			return nil, fmt.Errorf("distributor: %s has no paired processor for %s", key, opposite)
		}
	}
	return &Distributor{
		mdIn:    queue.NewMPSC[*market.Message](cfg.MDRingSize),
		reqIn:   queue.NewMPSC[*market.Request](cfg.RequestRingSize),
		respOut: queue.NewSPSC[*market.Request](cfg.ResponseRingSize),
		routes:  routes,
		procs:   procs,
		pool:    pool,
		cfg:     cfg,
		log:     log.Named("distributor"),
		metrics: m,
	}, nil
}

// SubmitMessage offers a market data message to the shared inbound stream.
func (d *Distributor) SubmitMessage(m *market.Message) bool { return d.mdIn.Push(m) }

// SubmitRequest offers an analytics request to the shared inbound stream.
func (d *Distributor) SubmitRequest(r *market.Request) bool { return d.reqIn.Push(r) }

// PollResponse drains one completed request from the shared outbound ring.
func (d *Distributor) PollResponse() (*market.Request, bool) { return d.respOut.Poll() }

// Start launches the three routing loops.
func (d *Distributor) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.wg.Add(3)
	go d.marketDataLoop()
	go d.requestLoop()
	go d.responseLoop()
	d.log.Info("distributor running", zap.Int("books", len(d.routes)))
}

// Shutdown stops the routing loops and waits for them to exit. In-flight
// queue contents are abandoned.
func (d *Distributor) Shutdown() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.wg.Wait()
	d.log.Info("distributor stopped")
}

func (d *Distributor) marketDataLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.wg.Done()

	for d.running.Load() {
		m, ok := d.mdIn.Poll()
		if !ok {
			runtime.Gosched()
			continue
		}
		key := market.BookKey{Instrument: m.Instrument, Side: m.Side}
		proc := d.routes[key]
		if proc == nil {
			// The codec validates instruments, so this indicates the
			// routing table was built inconsistently with the feed.
			d.log.DPanic("no processor for message", zap.Stringer("key", key))
			d.pool.Release(m)
			continue
		}
		if !offer(func() bool { return proc.SubmitMarketData(m) }, d.cfg.PushAttempts, d.cfg.PushPause) {
			d.metrics.MessagesDropped.WithLabelValues(key.Instrument, key.Side.String()).Inc()
			d.log.Error("market data ring full, dropping message", zap.Stringer("key", key))
			d.pool.Release(m)
		}
	}
}

func (d *Distributor) requestLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.wg.Done()

	for d.running.Load() {
		r, ok := d.reqIn.Poll()
		if !ok {
			runtime.Gosched()
			continue
		}
		key := r.Key()
		proc := d.routes[key]
		if proc == nil {
			d.log.DPanic("no processor for request", zap.Stringer("key", key))
			continue
		}
		if !offer(func() bool { return proc.SubmitRequest(r) }, d.cfg.PushAttempts, d.cfg.PushPause) {
			d.metrics.ResponsesDropped.WithLabelValues(key.Instrument, key.Side.String()).Inc()
			d.log.Error("request ring full, dropping request",
				zap.Stringer("key", key), zap.Uint64("id", r.ID))
		}
	}
}

// responseLoop sweeps every processor's response ring into the shared
// outbound ring.
func (d *Distributor) responseLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.wg.Done()

	for d.running.Load() {
		moved := false
		for _, proc := range d.procs {
			r, ok := proc.PollResponse()
			if !ok {
				continue
			}
			moved = true
			if !offer(func() bool { return d.respOut.Push(r) }, d.cfg.PushAttempts, d.cfg.PushPause) {
				key := r.Key()
				d.metrics.ResponsesDropped.WithLabelValues(key.Instrument, key.Side.String()).Inc()
				d.log.Error("response ring full, dropping response", zap.Uint64("id", r.ID))
			}
		}
		if !moved {
			runtime.Gosched()
		}
	}
}
