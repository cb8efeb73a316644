package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters and histograms, partitioned by token family where it applies.

var (
	// Upstream adapter
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream GET requests",
	}, []string{"endpoint"})

	UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "upstream",
		Name:      "failures_total",
		Help:      "Upstream requests that yielded no data (network, status or decode failure)",
	}, []string{"endpoint"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketapi",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Upstream request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint"})

	// Detail loader
	LoaderRecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "loader",
		Name:      "records_written_total",
		Help:      "Canonical records written by the detail loader",
	}, []string{"family"})

	LoaderRecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "loader",
		Name:      "records_skipped_total",
		Help:      "Records skipped because the detail fetch returned nothing",
	}, []string{"family"})

	LoaderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "loader",
		Name:      "errors_total",
		Help:      "Records that failed to load due to cache errors",
	}, []string{"family"})

	LoaderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketapi",
		Subsystem: "loader",
		Name:      "record_duration_seconds",
		Help:      "Per-record load duration including sub-fetches",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"family"})

	// Jobs
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job executions",
	}, []string{"job"})

	JobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "jobs",
		Name:      "errors_total",
		Help:      "Scheduled job executions that returned an error",
	}, []string{"job"})

	JobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketapi",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Scheduled job duration",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"job"})

	// Live events
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "events",
		Name:      "received_total",
		Help:      "Push events received from the upstream subscription",
	}, []string{"event"})

	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "events",
		Name:      "errors_total",
		Help:      "Push events that could not be applied",
	}, []string{"event"})

	EventReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketapi",
		Subsystem: "events",
		Name:      "reconnects_total",
		Help:      "Upstream subscription reconnect attempts",
	})

	// Read side
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketapi",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected websocket clients",
	})
)
