package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "psyprofile"

// Outcome labels for pipeline stages
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the service's private prometheus registry
type Metrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageTotal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	sessionsEnded  *prometheus.CounterVec
	llmTokensTotal *prometheus.CounterVec
}

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
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "stage_total",
			Help:        "Pipeline stage executions by outcome and error code.",
			ConstLabels: constLabels,
		},
		[]string{"stage", "outcome", "code"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			ConstLabels: constLabels,
		},
		[]string{"stage", "outcome"},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "active",
			Help:        "Number of live sessions holding data in memory.",
			ConstLabels: constLabels,
		},
	)
	sessionsEnded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "ended_total",
			Help:        "Sessions ended and wiped, by reason.",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "llm",
			Name:        "tokens_total",
			Help:        "Token usage reported by the model provider, by direction.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "direction", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stageTotal,
		stageDuration,
		activeSessions,
		sessionsEnded,
		llmTokensTotal,
	)

	return &Metrics{
		service:         service,
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		activeSessions:  activeSessions,
		sessionsEnded:   sessionsEnded,
		llmTokensTotal:  llmTokensTotal,
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps document IDs out of label values
func normalizePath(path string) string {
	const documents = "/api/v1/session/documents/"
	if strings.HasPrefix(path, documents) && len(path) > len(documents) {
		return documents + "{documentId}"
	}
	return path
}

// RecordStage records one pipeline stage run. code is the error code for
// failures and empty for successes.
func (m *Metrics) RecordStage(stage, code string, duration time.Duration) {
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeError
	}
	m.stageTotal.WithLabelValues(stage, outcome, code).Inc()
	m.stageDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// SessionEnded decrements the live session gauge. reason is "ended", "expired" or "shutdown".
func (m *Metrics) SessionEnded(reason string) {
	m.activeSessions.Dec()
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTokenUsage(operation, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "out", model).Add(float64(completionTokens))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
