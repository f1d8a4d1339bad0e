// Package market defines the value types that cross thread boundaries:
// market data messages, analytics requests, and the (instrument, side)
// routing key.
package market

// Side identifies one half of an instrument's book.
type Side uint8

const (
	Bid Side = iota
	Offer
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "offer"
}

// Kind categorises a market data instruction.
type Kind uint8

const (
	// Upsert creates a price level or adjusts the quantity resting at it.
	Upsert Kind = iota
	// Remove deletes a price level outright.
	Remove
)

func (k Kind) String() string {
	if k == Remove {
		return "remove"
	}
	return "upsert"
}

// Message is a single market data instruction. Instances are pooled: the
// inbound queue owns a message until the book processor dequeues it, copies
// the fields out and releases it back to the pool. A freshly acquired
// message carries whatever its previous use left behind, so producers must
// assign every field.
type Message struct {
	Kind       Kind
	Instrument string
	Side       Side
	Price      int64 // fixed point, price * 100
	Quantity   int64
	Time       int64 // epoch seconds from the feed, 0 if absent
}

// BookKey routes messages and requests to the processor owning one side of
// one instrument's book.
type BookKey struct {
	Instrument string
	Side       Side
}

func (k BookKey) String() string {
	return k.Instrument + "/" + k.Side.String()
}
