// Package metrics exposes Prometheus counters and histograms for the HTTP
// API, AI calls and quiz sessions.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/dsc-prep/internal/ai"
)

const namespace = "dsc"

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	aiCalls         *prometheus.CounterVec
	aiDuration      *prometheus.HistogramVec
	quizzes         *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		aiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_calls_total",
				Help:      "AI provider calls by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		aiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_call_duration_seconds",
				Help:      "Duration of AI provider calls",
				Buckets:   []float64{1, 5, 10, 20, 40, 60, 120},
			},
			[]string{"task"},
		),
		quizzes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quizzes_started_total",
				Help:      "Quiz generations requested by mode",
			},
			[]string{"mode"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.aiCalls,
		m.aiDuration,
		m.quizzes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records count and latency per route pattern, so path
// parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveAI records one AI call. Its signature matches quiz.Observer.
func (m *Metrics) ObserveAI(task ai.TaskType, elapsed time.Duration, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ai.ErrAuthExpired):
		outcome = "auth_expired"
	case err != nil:
		outcome = "error"
	}
	m.aiCalls.WithLabelValues(task.String(), outcome).Inc()
	m.aiDuration.WithLabelValues(task.String()).Observe(elapsed.Seconds())
}

// QuizStarted counts a generation request.
func (m *Metrics) QuizStarted(mode string) {
	m.quizzes.WithLabelValues(mode).Inc()
}

// TrackSessions exports the live session count through fn.
func (m *Metrics) TrackSessions(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Quiz sessions currently held in memory",
		},
		func() float64 { return float64(fn()) },
	))
}
