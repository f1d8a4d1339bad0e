// Package feed parses the tag=value wire protocol into pooled market data
// messages and replays line files into the engine.
package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/umarfq/bookline/domain/market"
	"github.com/umarfq/bookline/infra/memory"
)

const (
	// DefaultFieldDelimiter separates tag=value fields on a wire line.
	DefaultFieldDelimiter = "|"
	// DefaultKeyValueDelimiter separates a tag from its value.
	DefaultKeyValueDelimiter = "="
)

var (
	// ErrComment marks a line that carries no message ('#' prefix or blank).
	ErrComment = errors.New("feed: comment line")

	errMissingFields = errors.New("feed: line missing required fields")
)

// Codec turns wire lines into messages. A malformed line is an error for
// the caller to log and skip, never a reason to stop the feed. Unknown
// tags are ignored with a diagnostic.
type Codec struct {
	fieldDelim  string
	kvDelim     string
	instruments map[string]struct{}
	pool        *memory.Pool[market.Message]
	log         *zap.Logger
}

// NewCodec builds a codec accepting only the given instruments; a line for
// any other instrument is malformed, which keeps unroutable keys out of
// the engine entirely.
func NewCodec(instruments []string, pool *memory.Pool[market.Message], log *zap.Logger) *Codec {
	known := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		known[inst] = struct{}{}
	}
	return &Codec{
		fieldDelim:  DefaultFieldDelimiter,
		kvDelim:     DefaultKeyValueDelimiter,
		instruments: known,
		pool:        pool,
		log:         log,
	}
}

// Parse decodes one wire line into a pooled message. The caller owns the
// returned message and must eventually release it. ErrComment is returned
// for lines that produce no message.
func (c *Codec) Parse(line string) (*market.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil, ErrComment
	}

	var (
		parsed         market.Message
		haveInstrument bool
		havePrice      bool
		haveQuantity   bool
		haveSide       bool
	)

	for _, field := range strings.Split(line, c.fieldDelim) {
		tag, value, ok := strings.Cut(field, c.kvDelim)
		if !ok || tag == "" {
			return nil, fmt.Errorf("feed: field %q is not tag%svalue", field, c.kvDelim)
		}
		switch tag[0] {
		case 't':
			t, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("feed: bad time %q: %w", value, err)
			}
			parsed.Time = t
		case 'i':
			if _, known := c.instruments[value]; !known {
				return nil, fmt.Errorf("feed: unknown instrument %q", value)
			}
			parsed.Instrument = value
			haveInstrument = true
		case 'p':
			price, err := ParsePrice(value)
			if err != nil {
				return nil, err
			}
			parsed.Price = price
			havePrice = true
		case 'q':
			if value == "0" || value == "0.0" || value == "0.00" {
				parsed.Kind = market.Remove
			} else {
				qty, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("feed: bad quantity %q: %w", value, err)
				}
				parsed.Kind = market.Upsert
				parsed.Quantity = qty
			}
			haveQuantity = true
		case 's':
			if value == "b" {
				parsed.Side = market.Bid
			} else {
				parsed.Side = market.Offer
			}
			haveSide = true
		default:
			c.log.Warn("ignoring unknown field", zap.String("tag", tag))
		}
	}

	if !haveInstrument || !havePrice || !haveQuantity || !haveSide {
		return nil, errMissingFields
	}

	msg := c.pool.Acquire()
	*msg = parsed
	return msg, nil
}

// ParsePrice converts a decimal price string to the fixed-point integer
// representation (price * 100). An integer string is multiplied by 100 and
// a single decimal digit is padded by 10 before combining.
func ParsePrice(s string) (int64, error) {
	whole, frac, hasDot := strings.Cut(s, ".")
	if !hasDot {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("feed: bad price %q: %w", s, err)
		}
		return v * 100, nil
	}
	if len(frac) == 0 || len(frac) > 2 {
		return 0, fmt.Errorf("feed: bad price %q: expect at most 2 decimals", s)
	}
	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("feed: bad price %q: %w", s, err)
	}
	if len(frac) == 1 {
		v *= 10
	}
	return v, nil
}

// FormatPrice renders a fixed-point price back to its two-decimal string.
func FormatPrice(p int64) string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return fmt.Sprintf("%s%d.%02d", sign, p/100, p%100)
}
