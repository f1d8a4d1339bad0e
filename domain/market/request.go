package market

import "sync/atomic"

// QueryKind selects the analytic computed over the top levels of a book.
type QueryKind uint8

const (
	AveragePrice QueryKind = iota
	Vwap
	// AverageQuantity is, despite the name, the accumulated quantity over
	// the requested levels. The historical name is kept on purpose.
	AverageQuantity
)

func (q QueryKind) String() string {
	switch q {
	case AveragePrice:
		return "avg-price"
	case Vwap:
		return "vwap"
	default:
		return "avg-quantity"
	}
}

// Request is a single-shot analytics query. It is created by a caller,
// populated exactly once by the owning book processor and read exactly once
// after it comes back on the response queue. Requests must not be reused.
type Request struct {
	ID         uint64
	Instrument string
	Side       Side
	Kind       QueryKind
	Levels     int

	result    float64
	populated atomic.Bool
}

// SetResult stores the computed value. Only the first call wins; later
// calls report false and leave the stored value untouched.
func (r *Request) SetResult(v float64) bool {
	if !r.populated.CompareAndSwap(false, true) {
		return false
	}
	r.result = v
	return true
}

// Result returns the populated value. The second return is false until the
// owning processor has serviced the request.
func (r *Request) Result() (float64, bool) {
	if !r.populated.Load() {
		return 0, false
	}
	return r.result, true
}

// Key returns the routing key for the book this request targets.
func (r *Request) Key() BookKey {
	return BookKey{Instrument: r.Instrument, Side: r.Side}
}
