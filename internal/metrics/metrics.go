// Package metrics provides Prometheus metrics for the import service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/salesimport/internal/core"
)

// unresolvedPlatform labels runs whose platform name never resolved, so
// arbitrary client input cannot create label values.
const unresolvedPlatform = "unresolved"

var (
	// RunsTotal tracks import runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by platform and status",
		},
		[]string{"platform", "status"},
	)

	// RunDuration tracks import run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salesimport",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"platform"},
	)

	// BatchesTotal tracks committed batches
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Total number of committed batches",
		},
		[]string{"platform"},
	)

	// RowsTotal tracks rows by whether they mapped or were skipped
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of rows committed or skipped",
		},
		[]string{"platform", "result"},
	)

	// EntitiesTotal tracks entity writes by outcome
	EntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "import",
			Name:      "entities_total",
			Help:      "Total number of entity rows inserted or skipped as existing",
		},
		[]string{"entity", "result"},
	)

	// JobsProcessed tracks queued jobs by terminal status
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of import jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	// JobAttempts tracks how many attempts finished jobs needed
	JobAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "salesimport",
			Subsystem: "queue",
			Name:      "job_attempts",
			Help:      "Attempts used by finished import jobs",
			Buckets:   []float64{1, 2, 3, 5},
		},
	)

	// JobsInFlight tracks jobs currently being processed
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "salesimport",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of import jobs currently being processed",
		},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesimport",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salesimport",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// RecordHTTPRequest records an inbound HTTP request metric
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Observer records pipeline progress. It implements core.Observer and
// core.JobObserver.
type Observer struct{}

// BatchLoaded implements core.Observer.
func (Observer) BatchLoaded(platform string, b *core.Batch, r core.LoadResult) {
	BatchesTotal.WithLabelValues(platform).Inc()
	RowsTotal.WithLabelValues(platform, "committed").Add(float64(b.Rows))
	r.Each(func(entity string, c core.EntityCounts) {
		EntitiesTotal.WithLabelValues(entity, "inserted").Add(float64(c.Inserted))
		EntitiesTotal.WithLabelValues(entity, "skipped").Add(float64(c.Skipped))
	})
}

// RowFailed implements core.Observer.
func (Observer) RowFailed(platform string) {
	RowsTotal.WithLabelValues(platform, "skipped").Inc()
}

// RunFinished implements core.Observer.
func (Observer) RunFinished(platform string, s *core.RunSummary, err error) {
	status := string(core.RunSucceeded)
	if err != nil {
		status = string(core.RunFailed)
	}

	if s == nil {
		platform = unresolvedPlatform
	}
	RunsTotal.WithLabelValues(platform, status).Inc()

	if s != nil {
		RunDuration.WithLabelValues(platform).Observe(s.Duration.Seconds())
	}
}

// JobFinished implements core.JobObserver.
func (Observer) JobFinished(out core.JobOutcome) {
	JobsProcessed.WithLabelValues(string(out.Status)).Inc()
	JobAttempts.Observe(float64(out.Attempts))
}
