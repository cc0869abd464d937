package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task broker metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "llamafarm_tasks_total",
			Help: "Total number of task records by state",
		},
		[]string{"state"},
	)

	TasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_tasks_dispatched_total",
			Help: "Total number of tasks dispatched by name",
		},
		[]string{"name"},
	)

	TaskHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llamafarm_task_handler_duration_seconds",
			Help:    "Time taken by a task handler to run, by name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	// Ingestion pipeline metrics
	IngestFilesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llamafarm_ingest_files_processed_total",
			Help: "Total number of files processed by the ingestion pipeline",
		},
	)

	IngestChunksStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llamafarm_ingest_chunks_stored_total",
			Help: "Total number of chunks stored in a vector store",
		},
	)

	IngestFilesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_ingest_files_skipped_total",
			Help: "Total number of files or chunks skipped during ingestion, by reason class",
		},
		[]string{"reason"},
	)

	IngestJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llamafarm_ingest_job_duration_seconds",
			Help:    "Time taken for a full ingest job in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		},
	)

	// Model download metrics
	DownloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_download_bytes_total",
			Help: "Total bytes downloaded, by model_id",
		},
		[]string{"model_id"},
	)

	DownloadsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_downloads_failed_total",
			Help: "Total number of failed model downloads, by reason class",
		},
		[]string{"reason"},
	)

	// Orchestrator / service metrics
	ServicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "llamafarm_services_total",
			Help: "Total number of orchestrated services by state",
		},
		[]string{"state"},
	)

	ServiceRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_service_restarts_total",
			Help: "Total number of times the orchestrator restarted a service",
		},
		[]string{"service_id"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llamafarm_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llamafarm_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamafarm_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llamafarm_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksDispatchedTotal)
	prometheus.MustRegister(TaskHandlerDuration)

	prometheus.MustRegister(IngestFilesProcessedTotal)
	prometheus.MustRegister(IngestChunksStoredTotal)
	prometheus.MustRegister(IngestFilesSkippedTotal)
	prometheus.MustRegister(IngestJobDuration)

	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(DownloadsFailedTotal)

	prometheus.MustRegister(ServicesTotal)
	prometheus.MustRegister(ServiceRestartsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
