// Package service wires the engine together and is the only entry point
// for callers: feed lines in, analytics queries in, completed responses
// out.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/umarfq/bookline/config"
	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/engine"
	"github.com/umarfq/bookline/infra/feed"
	"github.com/umarfq/bookline/infra/memory"
)

// ErrStopped is returned by queries against a replicator that is not
// running.
var ErrStopped = fmt.Errorf("service: replicator not running")

// Replicator owns one processor pair per configured instrument plus the
// distributor fanning traffic between them.
type Replicator struct {
	cfg     *config.Config
	log     *zap.Logger
	pool    *memory.Pool[market.Message]
	procs   []*engine.Processor
	byKey   map[market.BookKey]*engine.Processor
	dist    *engine.Distributor
	ingest  *feed.Ingestor
	nextID  atomic.Uint64
	running atomic.Bool
}

// New builds a stopped replicator from configuration. Unpaired or
// duplicate books fail here, at wiring time.
func New(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Replicator, error) {
	metrics := engine.NewMetrics(reg)
	pool := memory.NewPool(func() *market.Message { return &market.Message{} })

	engCfg := engine.Config{
		MDRingSize:           cfg.Engine.MDRingSize,
		RequestRingSize:      cfg.Engine.RequestRingSize,
		ResponseRingSize:     cfg.Engine.ResponseRingSize,
		MaxPendingMarketData: cfg.Engine.MaxPendingMarketData,
		MaxPendingRequests:   cfg.Engine.MaxPendingRequests,
		MaxWait:              cfg.Engine.MaxWait,
		PushAttempts:         cfg.Engine.PushAttempts,
		PushPause:            cfg.Engine.PushPause,
	}

	var procs []*engine.Processor
	byKey := make(map[market.BookKey]*engine.Processor)
	for _, inst := range cfg.Instruments {
		bid := engine.NewProcessor(market.BookKey{Instrument: inst, Side: market.Bid}, engCfg, pool, log, metrics)
		offer := engine.NewProcessor(market.BookKey{Instrument: inst, Side: market.Offer}, engCfg, pool, log, metrics)
		bid.Pair(offer)
		offer.Pair(bid)
		procs = append(procs, bid, offer)
		byKey[bid.Key()] = bid
		byKey[offer.Key()] = offer
	}

	dist, err := engine.NewDistributor(procs, engCfg, pool, log, metrics)
	if err != nil {
		return nil, err
	}

	codec := feed.NewCodec(cfg.Instruments, pool, log)
	ingest := feed.NewIngestor(codec, dist, pool, cfg.Ingest.RetryAttempts, cfg.Ingest.RetryPause, log, metrics.LinesSkipped)

	return &Replicator{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		procs:  procs,
		byKey:  byKey,
		dist:   dist,
		ingest: ingest,
	}, nil
}

// Start launches every book processor and the distributor loops.
func (r *Replicator) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	for _, p := range r.procs {
		p.Start()
	}
	r.dist.Start()
	r.log.Info("replicator started", zap.Strings("instruments", r.cfg.Instruments))
}

// Stop shuts the distributor and processors down, abandoning in-flight
// queue contents.
func (r *Replicator) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.dist.Shutdown()
	for _, p := range r.procs {
		p.Stop()
	}
	r.log.Info("replicator stopped")
}

// IngestLine feeds one wire line into the engine, reporting acceptance.
func (r *Replicator) IngestLine(line string) bool {
	return r.ingest.OnLine(line)
}

// ReplayFile feeds every line of a file into the engine.
func (r *Replicator) ReplayFile(path string) (accepted, skipped int, err error) {
	return feed.ReplayFile(path, r.ingest)
}

// Query submits an analytics request and returns the in-flight request.
// The result arrives on the response stream; use NextResponse or Await to
// collect it.
func (r *Replicator) Query(instrument string, side market.Side, kind market.QueryKind, levels int) (*market.Request, error) {
	if !r.running.Load() {
		return nil, ErrStopped
	}
	key := market.BookKey{Instrument: instrument, Side: side}
	if _, ok := r.byKey[key]; !ok {
		return nil, fmt.Errorf("service: no book for %s", key)
	}
	if levels < 1 {
		return nil, fmt.Errorf("service: levels must be >= 1, got %d", levels)
	}
	req := &market.Request{
		ID:         r.nextID.Add(1),
		Instrument: instrument,
		Side:       side,
		Kind:       kind,
		Levels:     levels,
	}
	if !r.dist.SubmitRequest(req) {
		return nil, fmt.Errorf("service: request stream full")
	}
	return req, nil
}

// NextResponse polls the shared response stream.
func (r *Replicator) NextResponse() (*market.Request, bool) {
	return r.dist.PollResponse()
}

// Await drains the response stream until the given request comes back or
// the context expires. Responses to other requests drained along the way
// are handed to spill (which may be nil when the caller is the only query
// issuer).
func (r *Replicator) Await(ctx context.Context, req *market.Request, spill func(*market.Request)) (float64, error) {
	for {
		resp, ok := r.dist.PollResponse()
		if !ok {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(200 * time.Microsecond):
			}
			continue
		}
		if resp == req {
			v, _ := resp.Result()
			return v, nil
		}
		if spill != nil {
			spill(resp)
		}
	}
}

// TopOfBook returns the best price of a book as a decimal, 0 when empty.
func (r *Replicator) TopOfBook(instrument string, side market.Side) (float64, error) {
	p, ok := r.byKey[market.BookKey{Instrument: instrument, Side: side}]
	if !ok {
		return 0, fmt.Errorf("service: no book for %s/%s", instrument, side)
	}
	return p.TopOfBook(), nil
}

// ResponseEvent is the JSON shape published for a completed request.
type ResponseEvent struct {
	ID         uint64  `json:"id"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Kind       string  `json:"kind"`
	Levels     int     `json:"levels"`
	Result     float64 `json:"result"`
}

// EncodeResponse renders a completed request as its outbound event
// payload.
func EncodeResponse(req *market.Request) ([]byte, error) {
	v, ok := req.Result()
	if !ok {
		return nil, fmt.Errorf("service: request %d has no result", req.ID)
	}
	return json.Marshal(ResponseEvent{
		ID:         req.ID,
		Instrument: req.Instrument,
		Side:       req.Side.String(),
		Kind:       req.Kind.String(),
		Levels:     req.Levels,
		Result:     v,
	})
}

// PumpResponses drains completed responses into sink until the context is
// cancelled. It is the serve-mode bridge from the response stream to the
// outbox.
func (r *Replicator) PumpResponses(ctx context.Context, sink func(*market.Request)) {
	for {
		resp, ok := r.dist.PollResponse()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		sink(resp)
	}
}
