package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/dsc-prep/internal/ai"
	"github.com/p-n-ai/dsc-prep/internal/api"
	"github.com/p-n-ai/dsc-prep/internal/plan"
	"github.com/p-n-ai/dsc-prep/internal/platform/cache"
	"github.com/p-n-ai/dsc-prep/internal/platform/config"
	"github.com/p-n-ai/dsc-prep/internal/platform/database"
	"github.com/p-n-ai/dsc-prep/internal/platform/metrics"
	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/report"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const (
	evictInterval        = time.Minute
	providerCheckTimeout = 10 * time.Second
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	table, err := syllabus.Load(cfg.SyllabusPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	m := metrics.New()
	router := newAIRouter(cfg.AI)
	checkProviders(ctx, router)
	registry := newRegistry(cfg, table, router, st, m)
	defer registry.CloseAll()
	m.TrackSessions(registry.Len)
	go registry.Run(ctx, evictInterval)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newAPI(cfg, table, registry, st, m).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: countdown websockets stay open for the whole quiz.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "posts", len(table.Posts()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newAIRouter registers Gemini first and the OpenAI-compatible provider as
// its fallback.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()

	if cfg.Google.APIKey != "" {
		opts := []ai.GoogleOption{
			ai.WithGoogleModels(cfg.Google.Model, cfg.Google.ImageModel),
			ai.WithThinkingBudget(cfg.Google.ThinkingBudget),
		}
		if cfg.Google.BaseURL != "" {
			opts = append(opts, ai.WithGoogleBaseURL(cfg.Google.BaseURL))
		}
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey, opts...))
	}

	if cfg.OpenAI.APIKey != "" {
		var opts []ai.OpenAIOption
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if cfg.OpenAI.Model != "" {
			opts = append(opts, ai.WithDefaultModel(cfg.OpenAI.Model))
		}
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, opts...))
	}

	return router
}

// checkProviders logs providers that do not answer at startup. Generation
// still falls back through the router, so this never stops the server.
func checkProviders(ctx context.Context, router *ai.Router) {
	ctx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()
	if err := router.HealthCheck(ctx); err != nil {
		slog.Warn("AI provider health check failed", "error", err)
	}
}

// stores holds the persistence backends. Empty URLs select in-memory stores.
type stores struct {
	results quiz.ResultStore
	events  quiz.EventLogger
	prefs   quiz.PrefsStore
	ready   map[string]api.Check
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{
		results: quiz.NewMemoryResultStore(),
		events:  quiz.NopEventLogger{},
		prefs:   quiz.NewMemoryPrefsStore(),
		ready:   map[string]api.Check{},
	}

	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		st.closers = append(st.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		results, err := quiz.NewPostgresResultStore(db.Pool)
		if err != nil {
			st.close()
			return nil, err
		}
		st.results = results
		st.events = quiz.NewPostgresEventLogger(db.Pool)
		st.ready["database"] = db.HealthCheck
	} else {
		slog.Warn("no database configured, results are kept in memory")
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		st.closers = append(st.closers, func() { _ = c.Close() })
		st.prefs = quiz.NewRedisPrefsStore(c)
		st.ready["cache"] = c.HealthCheck
	} else {
		slog.Warn("no cache configured, saved configurations are kept in memory")
	}

	return st, nil
}

func newRegistry(cfg *config.Config, table *syllabus.Table, router *ai.Router, st *stores, m *metrics.Metrics) *quiz.Registry {
	return quiz.NewRegistry(quiz.RegistryConfig{
		Table:       table,
		Generator:   quiz.NewAIGenerator(router, quiz.WithObserver(m.ObserveAI)),
		Illustrator: quiz.NewAIIllustrator(router, m.ObserveAI),
		Results:     st.results,
		Events:      st.events,
		IdleTimeout: time.Duration(cfg.Quiz.SessionIdleTTL) * time.Minute,
		GenTimeout:  time.Duration(cfg.AI.Timeout) * time.Second,
	})
}

func newAPI(cfg *config.Config, table *syllabus.Table, registry *quiz.Registry, st *stores, m *metrics.Metrics) *api.Server {
	opts := api.Options{
		Table:    table,
		Sessions: registry,
		Prefs:    st.prefs,
		Results:  st.results,
		Plans:    plan.NewCatalog(cfg.Quiz.FreeQuestionLimit),
		Exporter: report.Exporter{
			FontPath:      cfg.Export.FontPath,
			MaxImageBytes: cfg.Export.MaxImageBytes,
		},
		RatePerMinute:  cfg.RateLimit.PerMinute,
		RateBurst:      cfg.RateLimit.Burst,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Ready:          st.ready,
	}
	if cfg.Server.Metrics {
		opts.Metrics = m
	}
	return api.New(opts)
}
