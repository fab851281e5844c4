// Package metrics provides Prometheus metrics for pride-store
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upsert outcomes.
const (
	OutcomeInserted = "inserted"
	OutcomeReplaced = "replaced"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for pride-store. A nil *Metrics records nothing.
type Metrics struct {
	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Reconciliation metrics
	UpsertsTotal   *prometheus.CounterVec
	DeleteAllTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Maintenance metrics
	SnapshotsTotal *prometheus.CounterVec
	BackupsTotal   *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. With a nil reg a fresh registry
// is used, so several instances can live in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_queries_total",
			Help: "Total number of fetch and count queries",
		},
		[]string{"collection", "operation", "status"},
	)

	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pridestore_query_duration_seconds",
			Help:    "Duration of queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"collection", "operation"},
	)

	m.UpsertsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_upserts_total",
			Help: "Total number of natural-key upserts by outcome",
		},
		[]string{"collection", "outcome"},
	)

	m.DeleteAllTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_delete_all_total",
			Help: "Total number of delete-all operations",
		},
		[]string{"collection"},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pridestore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.SnapshotsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_snapshots_total",
			Help: "Total number of snapshots by status",
		},
		[]string{"status"},
	)

	m.BackupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pridestore_backups_total",
			Help: "Total number of backups by status",
		},
		[]string{"status"},
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordQuery records a fetch or count.
func (m *Metrics) RecordQuery(collection, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(collection, operation, status(err)).Inc()
	m.QueryDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// RecordUpsert records the outcome of one upsert.
func (m *Metrics) RecordUpsert(collection, outcome string) {
	if m == nil {
		return
	}
	m.UpsertsTotal.WithLabelValues(collection, outcome).Inc()
}

// RecordDeleteAll records a delete-all.
func (m *Metrics) RecordDeleteAll(collection string) {
	if m == nil {
		return
	}
	m.DeleteAllTotal.WithLabelValues(collection).Inc()
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSnapshot records a snapshot attempt.
func (m *Metrics) RecordSnapshot(err error) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(status(err)).Inc()
}

// RecordBackup records a backup attempt.
func (m *Metrics) RecordBackup(err error) {
	if m == nil {
		return
	}
	m.BackupsTotal.WithLabelValues(status(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
