package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi"

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	aqiBuckets     = []float64{25, 50, 75, 100, 150, 200, 300, 400, 500}
	upstreamBucket = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Metrics holds the Prometheus collectors for the prediction service.
type Metrics struct {
	// Prediction metrics.
	Predictions        *prometheus.CounterVec   // labels: endpoint, outcome={success,validation_error,prediction_error,unavailable}
	PredictionDuration *prometheus.HistogramVec // labels: endpoint
	PredictedAQI       *prometheus.HistogramVec // labels: endpoint
	Categories         *prometheus.CounterVec   // labels: category
	ModelReady         prometheus.Gauge

	// HTTP metrics.
	HTTPRequests        *prometheus.CounterVec   // labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec // labels: method, path
	RateLimitRejects    prometheus.Counter
	PanicRecoveries     prometheus.Counter

	// Event publishing.
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}

	// City readings provider.
	ReadingsRequests *prometheus.CounterVec // labels: outcome={success,error}
	ReadingsCache    *prometheus.CounterVec // labels: result={hit,miss}
	ReadingsDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		PredictionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent validating, assembling, and scoring one request.",
			Buckets:   latencyBuckets,
		}, []string{"endpoint"}),
		PredictedAQI: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predicted_aqi",
			Help:      "Distribution of predicted AQI values.",
			Buckets:   aqiBuckets,
		}, []string{"endpoint"}),
		Categories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categories_total",
			Help:      "Predictions by AQI category.",
		}, []string{"category"}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when the model artifact loaded, 0 otherwise.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   latencyBuckets,
		}, []string{"method", "path"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		PanicRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panic_recoveries_total",
			Help:      "Handler panics recovered by middleware.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Prediction events written to Kafka by outcome.",
		}, []string{"outcome"}),
		ReadingsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_requests_total",
			Help:      "Upstream city readings lookups by outcome.",
		}, []string{"outcome"}),
		ReadingsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_cache_total",
			Help:      "City readings cache lookups by result.",
		}, []string{"result"}),
		ReadingsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readings_api_duration_seconds",
			Help:      "Upstream readings API request duration in seconds.",
			Buckets:   upstreamBucket,
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Predictions,
		m.PredictionDuration,
		m.PredictedAQI,
		m.Categories,
		m.ModelReady,
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.RateLimitRejects,
		m.PanicRecoveries,
		m.EventsPublished,
		m.ReadingsRequests,
		m.ReadingsCache,
		m.ReadingsDuration,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
