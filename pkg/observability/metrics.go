// Package observability provides Prometheus metrics for the event core and
// an HTTP endpoint exposing them.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AttemptBuckets covers append attempts from a clean first try up to the
// largest retry budget the config allows.
var AttemptBuckets = []float64{1, 2, 3, 4, 5, 8, 13}

var (
	// OrderKeyConflictsTotal counts inserts that lost an order-key race.
	OrderKeyConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convlog_orderkey_conflicts_total",
			Help: "Order key uniqueness conflicts",
		},
		[]string{"store"},
	)

	// AppendAttempts records how many attempts an append needed.
	AppendAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convlog_append_attempts",
			Help:    "Attempts per event append",
			Buckets: AttemptBuckets,
		},
		[]string{"result"},
	)

	// StreamFramesTotal counts interpreted stream frames by type.
	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convlog_stream_frames_total",
			Help: "Stream frames by type",
		},
		[]string{"type"},
	)

	// StreamMalformedLinesTotal counts data lines skipped because they did not parse.
	StreamMalformedLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "convlog_stream_malformed_lines_total",
			Help: "Malformed stream lines skipped",
		},
	)

	// ActiveStreams tracks stream sessions in flight.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "convlog_streams_active",
			Help: "Active stream sessions",
		},
	)

	// ProviderSegmentsSkippedTotal counts provider items dropped during mapping.
	ProviderSegmentsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convlog_provider_segments_skipped_total",
			Help: "Provider segments skipped during mapping",
		},
		[]string{"provider"},
	)

	// BranchesTotal counts branch operations by outcome.
	BranchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convlog_branches_total",
			Help: "Branch operations",
		},
		[]string{"outcome"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convlog_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		OrderKeyConflictsTotal,
		AppendAttempts,
		StreamFramesTotal,
		StreamMalformedLinesTotal,
		ActiveStreams,
		ProviderSegmentsSkippedTotal,
		BranchesTotal,
		ToolExecutionsTotal,
	)
}
