// Package metrics holds the Prometheus collectors of the indexer processes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nft_indexer"

// Metrics holds all indexer collectors on a private registry.
// Every method is a no-op on a nil *Metrics.
type Metrics struct {
	// Admission
	AdmissionBuffered prometheus.Gauge
	AdmittedJobs      prometheus.Counter
	QueueDepth        prometheus.Gauge

	// Sync
	SyncRecords *prometheus.CounterVec
	SyncDeltas  *prometheus.CounterVec

	// Reconciliation
	ReconcileWrites *prometheus.CounterVec

	// Jobs
	Jobs        *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them with process and go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.AdmissionBuffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_buffered_items",
		Help:      "Work items waiting in the admission buffer",
	})
	m.AdmittedJobs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_admitted_jobs_total",
		Help:      "Jobs released from the admission buffer to the queue",
	})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Outstanding jobs in the durable queue at the last admission tick",
	})
	m.SyncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_records_processed_total",
		Help:      "Source records marked processed by the ownership sync",
	}, []string{"source"})
	m.SyncDeltas = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_deltas_applied_total",
		Help:      "Aggregated ownership writes applied by the ownership sync",
	}, []string{"kind", "op"})
	m.ReconcileWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_writes_total",
		Help:      "Ownership records compared by reconciliation, by outcome",
	}, []string{"kind", "outcome"})
	m.Jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Jobs handled by the worker, by outcome",
	}, []string{"job", "outcome"})
	m.JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job handler latency",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"job"})

	m.registry.MustRegister(
		m.AdmissionBuffered,
		m.AdmittedJobs,
		m.QueueDepth,
		m.SyncRecords,
		m.SyncDeltas,
		m.ReconcileWrites,
		m.Jobs,
		m.JobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAdmission records one admission tick
func (m *Metrics) ObserveAdmission(depth int, admitted int, buffered int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	m.AdmittedJobs.Add(float64(admitted))
	m.AdmissionBuffered.Set(float64(buffered))
}

// SetBuffered records the admission buffer size
func (m *Metrics) SetBuffered(buffered int) {
	if m == nil {
		return
	}
	m.AdmissionBuffered.Set(float64(buffered))
}

// ObserveSyncRecords counts source records marked processed
func (m *Metrics) ObserveSyncRecords(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SyncRecords.WithLabelValues(source).Add(float64(n))
}

// ObserveSyncDeltas counts aggregated writes of one sub-batch
func (m *Metrics) ObserveSyncDeltas(kind string, op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SyncDeltas.WithLabelValues(kind, op).Add(float64(n))
}

// ObserveReconcile counts reconciliation outcomes (same, updated, deleted, skipped)
func (m *Metrics) ObserveReconcile(kind string, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReconcileWrites.WithLabelValues(kind, outcome).Add(float64(n))
}

// ObserveJob records one job run
func (m *Metrics) ObserveJob(job string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.Jobs.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
