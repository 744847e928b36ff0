package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and scheduler.
type Metrics struct {
	RecordsCollected *prometheus.CounterVec // labels: record={traffic_sample,incident,vehicle_record,risk_score}
	PollFailures     *prometheus.CounterVec // labels: sweep={traffic,vehicle}
	SinkErrors       prometheus.Counter
	SchedulerRunning prometheus.Gauge

	// Per-job scheduler metrics.
	JobRuns  *prometheus.CounterVec // labels: job, outcome={ok,error}
	JobSkips *prometheus.CounterVec // labels: job

	// Sweep and upstream API metrics.
	SweepDuration   *prometheus.HistogramVec // labels: sweep
	UpstreamLatency *prometheus.HistogramVec // labels: api={tomtom_flow,tomtom_incidents,nhtsa}, outcome={success,error}

	// Vehicle-rating cache metrics.
	RaterCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RecordsCollected,
		m.PollFailures,
		m.SinkErrors,
		m.SchedulerRunning,
		m.JobRuns,
		m.JobSkips,
		m.SweepDuration,
		m.UpstreamLatency,
		m.RaterCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "records_collected_total",
			Help:      "Records collected and published to the sink, by record type.",
		}, []string{"record"}),
		PollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "poll_failures_total",
			Help:      "Per-unit poll failures recorded by the rate-limited poller, by sweep.",
		}, []string{"sweep"}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "sink_errors_total",
			Help:      "Failed sink batch writes (job-level errors, not per-unit).",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "risk_ingest",
			Name:      "scheduler_running",
			Help:      "1 when the job scheduler is active, 0 when shut down.",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "job_runs_total",
			Help:      "Completed job executions by job name and outcome.",
		}, []string{"job", "outcome"}),
		JobSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "job_skips_total",
			Help:      "Ticks skipped because the same job was still running.",
		}, []string{"job"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "risk_ingest",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a complete sweep over all units.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"sweep"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "risk_ingest",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration by API and outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"api", "outcome"}),
		RaterCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_ingest",
			Name:      "rater_cache_total",
			Help:      "Vehicle-rating cache lookups by result.",
		}, []string{"result"}),
	}
}
