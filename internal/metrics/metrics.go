// Package metrics exposes Prometheus instrumentation for ingestion, store
// health and presence.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "events_ingested_total",
			Help:      "Ingested analytics events by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: page_view, user_action, heartbeat
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "store_failures_total",
			Help:      "Store operations that failed or were short-circuited",
		},
		[]string{"operation"},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Name:      "online_users",
			Help:      "Sessions active within the online window at the last real-time read",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "folio",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "folio",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "job_runs_total",
			Help:      "Background job executions by result",
		},
		[]string{"job", "result"},
	)

	RowsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "rows_pruned_total",
			Help:      "Rows removed by retention jobs",
		},
		[]string{"table"},
	)
)

// RecordIngest counts one ingestion attempt.
func RecordIngest(kind, outcome string) {
	EventsIngested.WithLabelValues(kind, outcome).Inc()
}

// RecordStoreFailure counts a failed or rejected store operation.
func RecordStoreFailure(operation string) {
	StoreFailures.WithLabelValues(operation).Inc()
}

// RecordJobRun counts a background job execution.
func RecordJobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	JobRuns.WithLabelValues(job, result).Inc()
}

// RecordPruned adds deleted row counts for a table.
func RecordPruned(table string, rows int64) {
	if rows > 0 {
		RowsPruned.WithLabelValues(table).Add(float64(rows))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware observes request latency labelled by the matched route pattern,
// keeping label cardinality bounded.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
