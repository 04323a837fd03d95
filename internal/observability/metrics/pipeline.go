package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runInFlight   prometheus.Gauge
	queueLag      *prometheus.HistogramVec

	inferenceInFlight prometheus.Gauge
	inferenceTotal    *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	limiterWait       *prometheus.HistogramVec
	retryTotal        *prometheus.CounterVec
	indexSyncTotal    *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chartmill",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Completed pipeline stages by stage and status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chartmill",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chartmill",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of documents currently moving through the pipeline.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chartmill",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and pipeline start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	inferenceInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chartmill",
			Subsystem: "inference",
			Name:      "in_flight_requests",
			Help:      "Inference requests currently holding a limiter slot.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	inferenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chartmill",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Total inference requests by operation and status.",
		},
		[]string{"service", "operation", "status"},
	)
	inferenceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chartmill",
			Subsystem: "inference",
			Name:      "request_duration_seconds",
			Help:      "Inference request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
	limiterWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chartmill",
			Subsystem: "inference",
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for an inference limiter slot.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chartmill",
			Subsystem: "inference",
			Name:      "rate_limit_retries_total",
			Help:      "Total retries triggered by upstream rate limiting.",
		},
		[]string{"service", "operation"},
	)
	indexSyncTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chartmill",
			Subsystem: "index",
			Name:      "sync_total",
			Help:      "Search index synchronization attempts by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		stageTotal,
		stageDuration,
		runInFlight,
		queueLag,
		inferenceInFlight,
		inferenceTotal,
		inferenceDuration,
		limiterWait,
		retryTotal,
		indexSyncTotal,
	)

	return &PipelineMetrics{
		registry:          registry,
		stageTotal:        stageTotal,
		stageDuration:     stageDuration,
		runInFlight:       runInFlight,
		queueLag:          queueLag,
		inferenceInFlight: inferenceInFlight,
		inferenceTotal:    inferenceTotal,
		inferenceDuration: inferenceDuration,
		limiterWait:       limiterWait,
		retryTotal:        retryTotal,
		indexSyncTotal:    indexSyncTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *PipelineMetrics) FinishRun() {
	m.runInFlight.Dec()
}

func (m *PipelineMetrics) ObserveStage(service, stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageTotal.WithLabelValues(service, stage, status).Inc()
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *PipelineMetrics) RecordIndexSync(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexSyncTotal.WithLabelValues(service, status).Inc()
}

func (m *PipelineMetrics) RecordRateLimitRetry(service, operation string) {
	m.retryTotal.WithLabelValues(service, operation).Inc()
}

// InferenceRecorder narrows PipelineMetrics to what the inference client
// needs, bound to one service label.
type InferenceRecorder struct {
	metrics *PipelineMetrics
	service string
}

func (m *PipelineMetrics) InferenceRecorder(service string) *InferenceRecorder {
	return &InferenceRecorder{metrics: m, service: service}
}

func (r *InferenceRecorder) ObserveLimiterWait(wait time.Duration) {
	r.metrics.limiterWait.WithLabelValues(r.service).Observe(wait.Seconds())
}

func (r *InferenceRecorder) InferenceStarted() {
	r.metrics.inferenceInFlight.Inc()
}

func (r *InferenceRecorder) InferenceFinished(operation string, d time.Duration, err error) {
	r.metrics.inferenceInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.inferenceTotal.WithLabelValues(r.service, operation, status).Inc()
	r.metrics.inferenceDuration.WithLabelValues(r.service, operation).Observe(d.Seconds())
}
