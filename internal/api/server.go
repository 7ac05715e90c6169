// Package api serves the quiz over HTTP: syllabus lookups, saved
// configuration, quiz sessions, reports and exports, plus a websocket stream
// of countdown updates.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/p-n-ai/dsc-prep/internal/plan"
	"github.com/p-n-ai/dsc-prep/internal/platform/metrics"
	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/report"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// Request headers understood by the API.
const (
	HeaderClientID = "X-Client-ID"
	HeaderPlan     = "X-Plan"
)

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

// Options configures a Server. Table, Sessions, Prefs and Results are
// required.
type Options struct {
	Table    *syllabus.Table
	Sessions *quiz.Registry
	Prefs    quiz.PrefsStore
	Results  quiz.ResultStore
	Plans    *plan.Catalog
	Exporter report.Exporter
	Metrics  *metrics.Metrics // optional

	// RatePerMinute and RateBurst limit generation requests per client.
	RatePerMinute int
	RateBurst     int

	AllowedOrigins []string
	Ready          map[string]Check
}

// Server holds the HTTP handlers.
type Server struct {
	table    *syllabus.Table
	sessions *quiz.Registry
	prefs    quiz.PrefsStore
	results  quiz.ResultStore
	plans    *plan.Catalog
	exporter report.Exporter
	metrics  *metrics.Metrics
	limiter  *clientLimiter
	origins  []string
	ready    map[string]Check
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Plans == nil {
		opts.Plans = plan.NewCatalog(plan.DefaultFreeQuestionLimit)
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 3
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		table:    opts.Table,
		sessions: opts.Sessions,
		prefs:    opts.Prefs,
		results:  opts.Results,
		plans:    opts.Plans,
		exporter: opts.Exporter,
		metrics:  opts.Metrics,
		limiter:  newClientLimiter(opts.RatePerMinute, opts.RateBurst, time.Now),
		origins:  opts.AllowedOrigins,
		ready:    opts.Ready,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", HeaderClientID, HeaderPlan},
		ExposedHeaders: []string{"Content-Disposition", "Location"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/posts", s.handleListPosts)
		r.Get("/posts/{post}/distribution", s.handleDistribution)
		r.Get("/posts/{post}/quick/{code}", s.handleQuickSubject)
		r.Get("/topics", s.handleTopics)
		r.Get("/plans", s.handlePlans)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/history", s.handleHistory)

		r.Route("/sessions", func(r chi.Router) {
			r.With(s.limiter.middleware).Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(s.loadSession)
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleResetSession)
				r.With(s.limiter.middleware).Post("/start", s.handleStartSession)
				r.With(s.limiter.middleware).Post("/retry", s.handleRetrySession)
				r.Post("/auth", s.handleAuthenticate)
				r.Post("/answers", s.handleAnswer)
				r.Post("/next", s.handleNext)
				r.Post("/finish", s.handleFinish)
				r.Post("/questions/{qid}/image", s.handleImage)
				r.Get("/report", s.handleReport)
				r.Get("/export", s.handleExport)
				r.Get("/ws", s.handleWebsocket)
			})
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
