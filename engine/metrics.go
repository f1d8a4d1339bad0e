package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the engine's Prometheus instruments. All series are
// labelled by instrument and side so one registry serves every book.
type Metrics struct {
	MessagesApplied   *prometheus.CounterVec
	CrossingsRejected *prometheus.CounterVec
	RequestsServed    *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	ResponsesDropped  *prometheus.CounterVec
	BookDepth         *prometheus.GaugeVec
	LinesSkipped      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	labels := []string{"instrument", "side"}
	return &Metrics{
		MessagesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "messages_applied_total",
			Help:      "Market data messages applied to a book.",
		}, labels),
		CrossingsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "crossings_rejected_total",
			Help:      "Upserts rejected because they crossed the opposing book.",
		}, labels),
		RequestsServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "requests_served_total",
			Help:      "Analytics requests answered.",
		}, labels),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "cache_hits_total",
			Help:      "Analytics requests answered from the result cache.",
		}, labels),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "messages_dropped_total",
			Help:      "Market data messages dropped after exhausting queue retries.",
		}, labels),
		ResponsesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "responses_dropped_total",
			Help:      "Requests or responses dropped after exhausting queue retries.",
		}, labels),
		BookDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bookline",
			Name:      "book_depth_levels",
			Help:      "Live price levels per book.",
		}, labels),
		LinesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Name:      "lines_skipped_total",
			Help:      "Feed lines skipped as malformed or undeliverable.",
		}),
	}
}
