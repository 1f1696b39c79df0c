// Package metrics provides Prometheus instrumentation for the linewire
// client: rows and bytes flushed, flush latency, retry counts, and failures
// by error kind. Collectors are registered once at package init; recording
// is thread-safe and cheap enough for the hot flush path.
//
// Basic usage:
//
//	timer := metrics.NewFlushTimer("http")
//	err := transport.Send(ctx, payload)
//	timer.Observe()
//	if err == nil {
//	    metrics.RecordFlushSuccess("http", rows, bytes)
//	}
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsFlushed counts rows delivered to the endpoint.
	RowsFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linewire",
			Name:      "rows_flushed_total",
			Help:      "Total number of rows flushed to the ingestion endpoint",
		},
		[]string{"protocol"},
	)

	// BytesFlushed counts payload bytes delivered to the endpoint.
	BytesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linewire",
			Name:      "bytes_flushed_total",
			Help:      "Total payload bytes flushed to the ingestion endpoint",
		},
		[]string{"protocol"},
	)

	// FlushLatency observes end-to-end flush durations, retries included.
	FlushLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linewire",
			Name:      "flush_duration_seconds",
			Help:      "Flush latency including connect, auth, and retries",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"protocol"},
	)

	// FlushRetries counts individual retry attempts on the request transport.
	FlushRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linewire",
			Name:      "flush_retries_total",
			Help:      "Total retry attempts performed by the HTTP flush loop",
		},
	)

	// FlushFailures counts terminal flush failures by error kind.
	FlushFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linewire",
			Name:      "flush_failures_total",
			Help:      "Total flushes that returned an error, by error kind",
		},
		[]string{"kind"},
	)

	// AutoFlushes counts flushes triggered by a threshold rather than the
	// caller.
	AutoFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linewire",
			Name:      "auto_flushes_total",
			Help:      "Total flushes triggered automatically, by threshold",
		},
		[]string{"threshold"},
	)
)

// FlushTimer measures one flush for the latency histogram.
type FlushTimer struct {
	protocol string
	start    time.Time
}

// NewFlushTimer starts timing a flush for the given protocol label.
func NewFlushTimer(protocol string) *FlushTimer {
	return &FlushTimer{protocol: protocol, start: time.Now()}
}

// Observe records the elapsed time and returns it.
func (t *FlushTimer) Observe() time.Duration {
	elapsed := time.Since(t.start)
	FlushLatency.WithLabelValues(t.protocol).Observe(elapsed.Seconds())
	return elapsed
}

// RecordFlushSuccess records a delivered payload.
func RecordFlushSuccess(protocol string, rows, bytes int) {
	RowsFlushed.WithLabelValues(protocol).Add(float64(rows))
	BytesFlushed.WithLabelValues(protocol).Add(float64(bytes))
}

// RecordFlushFailure records a terminal flush error.
func RecordFlushFailure(kind string) {
	FlushFailures.WithLabelValues(kind).Inc()
}
