// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_invocations_total",
			Help: "Bridged handler invocations by outcome",
		},
		[]string{"bridge", "outcome"},
	)

	ResolutionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resbridge_resolution_seconds",
			Help:    "Time from handler invocation until the response is committed",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"bridge"},
	)

	BytesStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_bytes_streamed_total",
			Help: "Body bytes accepted by the response pipe",
		},
		[]string{"bridge"},
	)

	PostCloseOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_post_close_operations_total",
			Help: "Shim calls ignored because the response was already sent or deferred",
		},
		[]string{"bridge", "op"},
	)

	StreamAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_stream_aborts_total",
			Help: "Response streams aborted by the consumer or by a late handler error",
		},
		[]string{"bridge"},
	)

	InflightInvocations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resbridge_inflight_invocations",
			Help: "Invocations waiting for resolution",
		},
		[]string{"bridge"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)

	JournalFlushErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resbridge_journal_flush_errors_total",
			Help: "Invocation journal flushes that failed after retries",
		},
		[]string{"bridge"},
	)
)
