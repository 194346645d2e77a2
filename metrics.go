package bentengo

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// reliability layers. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimitDenied *prometheus.CounterVec

	fallbackServes *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	drainedWrites  prometheus.Counter

	deduplicationHits *prometheus.CounterVec

	healthScore prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer; tests pass a fresh prometheus.NewRegistry for isolation.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bentengo_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bentengo_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bentengo_circuit_breaker_state",
				Help: "Current state of circuit breaker per endpoint (0=closed, 1=open, 2=half-open)",
			},
			[]string{"endpoint"},
		),
		rateLimitDenied: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_rate_limit_denied_total",
				Help: "Total number of requests denied by the sliding-window rate limiter",
			},
			[]string{"endpoint"},
		),
		fallbackServes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_fallback_serves_total",
				Help: "Total number of responses served from the fallback store",
			},
			[]string{"endpoint", "source"},
		),
		queueDepth: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bentengo_offline_queue_depth",
				Help: "Current number of queued offline writes",
			},
		),
		drainedWrites: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "bentengo_drained_writes_total",
				Help: "Total number of queued writes successfully replayed",
			},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_deduplication_hits_total",
				Help: "Total number of deduplication hits",
			},
			[]string{"method", "endpoint"},
		),
		healthScore: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bentengo_health_score",
				Help: "Latest composite health score (0-100)",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bentengo_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState sets the per-endpoint breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(endpoint string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordRateLimitDenied increments the denial counter.
func (mc *MetricsCollector) RecordRateLimitDenied(endpoint string) {
	if mc == nil {
		return
	}

	mc.rateLimitDenied.WithLabelValues(endpoint).Inc()
}

// RecordFallbackServe increments the fallback serve counter.
func (mc *MetricsCollector) RecordFallbackServe(endpoint string, source ResponseSource) {
	if mc == nil {
		return
	}

	mc.fallbackServes.WithLabelValues(endpoint, source.String()).Inc()
}

// RecordQueueDepth sets the offline queue depth gauge.
func (mc *MetricsCollector) RecordQueueDepth(depth int) {
	if mc == nil {
		return
	}

	mc.queueDepth.Set(float64(depth))
}

// RecordDrainedWrites adds successfully replayed writes to the counter.
func (mc *MetricsCollector) RecordDrainedWrites(count int) {
	if mc == nil || count <= 0 {
		return
	}

	mc.drainedWrites.Add(float64(count))
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

// RecordHealthScore sets the composite health score gauge.
func (mc *MetricsCollector) RecordHealthScore(score float64) {
	if mc == nil {
		return
	}

	mc.healthScore.Set(score)
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
