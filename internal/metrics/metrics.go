// Package metrics exposes Prometheus collectors for the HTTP surface and
// the prediction pipeline on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exodetect"

// Metrics holds the collectors. The zero value is not usable; use New.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	predictionsTotal  *prometheus.CounterVec
	predictionRows    *prometheus.HistogramVec
	decodeStrategies  *prometheus.CounterVec
	habitabilityRows  prometheus.Counter
	trainingDuration  *prometheus.HistogramVec
	trainingRunsTotal *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	predictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "predictions_total",
			Help:        "Predictions by model and verdict.",
			ConstLabels: constLabels,
		},
		[]string{"model", "status"},
	)
	predictionRows := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "prediction_rows",
			Help:        "Rows scored per prediction after preprocessing.",
			Buckets:     []float64{1, 2, 5, 10, 50, 100, 500, 1000, 5000},
			ConstLabels: constLabels,
		},
		[]string{"model"},
	)
	decodeStrategies := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "decode_total",
			Help:        "Decoded uploads by winning strategy; \"failed\" when every strategy failed.",
			ConstLabels: constLabels,
		},
		[]string{"strategy"},
	)
	habitabilityRows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "habitability_rows_total",
			Help:        "Planets assessed for habitability.",
			ConstLabels: constLabels,
		},
	)
	trainingDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "training",
			Name:        "duration_seconds",
			Help:        "Model training duration in seconds.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		},
		[]string{"variant"},
	)
	trainingRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "training",
			Name:        "runs_total",
			Help:        "Training runs by variant and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"variant", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		predictionsTotal,
		predictionRows,
		decodeStrategies,
		habitabilityRows,
		trainingDuration,
		trainingRunsTotal,
	)

	return &Metrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		predictionsTotal:  predictionsTotal,
		predictionRows:    predictionRows,
		decodeStrategies:  decodeStrategies,
		habitabilityRows:  habitabilityRows,
		trainingDuration:  trainingDuration,
		trainingRunsTotal: trainingRunsTotal,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestStarted increments the in-flight gauge and returns the function
// that records the finished request.
func (m *Metrics) RequestStarted(method, path string) func(status int) {
	start := time.Now()
	m.requestInFlight.Inc()
	return func(status int) {
		m.requestInFlight.Dec()
		m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordPrediction counts one prediction.
func (m *Metrics) RecordPrediction(model, status string, rows int) {
	if model == "" {
		model = "none"
	}
	m.predictionsTotal.WithLabelValues(model, status).Inc()
	if rows > 0 {
		m.predictionRows.WithLabelValues(model).Observe(float64(rows))
	}
}

// RecordDecode counts the strategy that decoded an upload.
func (m *Metrics) RecordDecode(strategy string) {
	if strategy == "" {
		strategy = "failed"
	}
	m.decodeStrategies.WithLabelValues(strategy).Inc()
}

// RecordHabitability counts assessed planets.
func (m *Metrics) RecordHabitability(rows int) {
	m.habitabilityRows.Add(float64(rows))
}

// RecordTraining observes one training run.
func (m *Metrics) RecordTraining(variant string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.trainingRunsTotal.WithLabelValues(variant, outcome).Inc()
	if err == nil {
		m.trainingDuration.WithLabelValues(variant).Observe(d.Seconds())
	}
}
