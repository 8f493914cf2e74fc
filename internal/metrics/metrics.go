// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ttsd"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	synthesisDuration   *prometheus.HistogramVec
	synthesisTotal      *prometheus.CounterVec
	audioSecondsTotal   *prometheus.CounterVec
	inflightSyntheses   *prometheus.GaugeVec
	modelStatus         *prometheus.GaugeVec
	rateLimitedTotal    prometheus.Counter
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Duration of backend synthesis calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model", "status"},
		),

		synthesisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_total",
				Help:      "Total number of synthesis calls",
			},
			[]string{"model", "status"}, // status: success, error
		),

		audioSecondsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_seconds_total",
				Help:      "Total seconds of audio synthesized",
			},
			[]string{"model"},
		),

		inflightSyntheses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "synthesis_inflight",
				Help:      "Number of synthesis calls currently running",
			},
			[]string{"model"},
		),

		modelStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_loaded",
				Help:      "1 when the model is loaded, 0 otherwise",
			},
			[]string{"model"},
		),

		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.synthesisDuration,
		m.synthesisTotal,
		m.audioSecondsTotal,
		m.inflightSyntheses,
		m.modelStatus,
		m.rateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StartSynthesis marks a synthesis as running and returns the function that records its outcome.
func (m *Metrics) StartSynthesis(model string) func(audio time.Duration, err error) {
	if m == nil {
		return func(time.Duration, error) {}
	}

	start := time.Now()
	m.inflightSyntheses.WithLabelValues(model).Inc()

	return func(audio time.Duration, err error) {
		m.inflightSyntheses.WithLabelValues(model).Dec()

		status := StatusSuccess
		if err != nil {
			status = StatusError
		}

		m.synthesisTotal.WithLabelValues(model, status).Inc()
		m.synthesisDuration.WithLabelValues(model, status).Observe(time.Since(start).Seconds())
		if err == nil {
			m.audioSecondsTotal.WithLabelValues(model).Add(audio.Seconds())
		}
	}
}

// SetModelLoaded records the load state of a model.
func (m *Metrics) SetModelLoaded(model string, loaded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	m.modelStatus.WithLabelValues(model).Set(v)
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}
