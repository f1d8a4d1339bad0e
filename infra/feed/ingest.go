package feed

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/umarfq/bookline/domain/market"
)

// Submitter is the engine-side entry point the ingestor feeds. Push
// semantics are non-blocking: false means the shared inbound ring is full
// right now.
type Submitter interface {
	SubmitMessage(*market.Message) bool
}

// Releaser takes back a pooled message the ingestor failed to deliver.
type Releaser interface {
	Release(*market.Message)
}

// Ingestor drives wire lines through the codec into the engine. A full
// inbound ring is retried a bounded number of times with a pause, then the
// line is given up on and reported to the caller; it is never dropped
// silently and never spun on forever.
type Ingestor struct {
	codec    *Codec
	engine   Submitter
	pool     Releaser
	attempts int
	pause    time.Duration
	log      *zap.Logger
	skipped  prometheus.Counter
}

func NewIngestor(codec *Codec, engine Submitter, pool Releaser, attempts int, pause time.Duration, log *zap.Logger, skipped prometheus.Counter) *Ingestor {
	if attempts <= 0 {
		attempts = 3
	}
	if pause <= 0 {
		pause = 100 * time.Millisecond
	}
	return &Ingestor{
		codec:    codec,
		engine:   engine,
		pool:     pool,
		attempts: attempts,
		pause:    pause,
		log:      log,
		skipped:  skipped,
	}
}

// OnLine parses and submits one wire line, reporting whether it was
// accepted by the engine. Comment lines are accepted trivially; malformed
// lines are logged and reported as not accepted.
func (in *Ingestor) OnLine(line string) bool {
	msg, err := in.codec.Parse(line)
	if err != nil {
		if errors.Is(err, ErrComment) {
			return true
		}
		in.log.Warn("skipping malformed line", zap.String("line", line), zap.Error(err))
		in.skipped.Inc()
		return false
	}

	if in.engine.SubmitMessage(msg) {
		return true
	}
	for i := 0; i < in.attempts; i++ {
		in.log.Warn("inbound ring full, retrying", zap.Int("attempt", i+1))
		time.Sleep(in.pause)
		if in.engine.SubmitMessage(msg) {
			return true
		}
	}
	in.pool.Release(msg)
	in.log.Error("inbound ring still full, giving up on line", zap.String("line", line))
	in.skipped.Inc()
	return false
}
