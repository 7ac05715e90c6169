// Package config loads application configuration from environment variables.
// All variables use the DSC_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Cache        CacheConfig
	AI           AIConfig
	Quiz         QuizConfig
	Export       ExportConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Log          LogConfig
	SyllabusPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	Host            string
	ShutdownTimeout int // seconds
	Metrics         bool // expose /metrics
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps
// results and events in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL keeps
// saved quiz configurations in memory.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for the question and image providers.
type AIConfig struct {
	Google  GoogleConfig
	OpenAI  OpenAIConfig
	Timeout int // seconds per generation
}

// GoogleConfig holds Google Gemini provider settings.
type GoogleConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	ImageModel     string
	ThinkingBudget int
}

// OpenAIConfig holds settings for an OpenAI-compatible fallback provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// QuizConfig holds quiz session settings.
type QuizConfig struct {
	FreeQuestionLimit int
	SessionIdleTTL    int // minutes
}

// ExportConfig holds document export settings.
type ExportConfig struct {
	FontPath      string // UTF-8 TrueType font for PDF export
	MaxImageBytes int
}

// RateLimitConfig limits generation requests per client.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with DSC_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("DSC_SERVER_PORT", 8080),
			Host:            envStr("DSC_SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: envInt("DSC_SERVER_SHUTDOWN_TIMEOUT", 10),
			Metrics:         envBool("DSC_SERVER_METRICS", true),
		},
		Database: DatabaseConfig{
			URL:      envStr("DSC_DATABASE_URL", ""),
			MaxConns: envInt("DSC_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("DSC_DATABASE_MIN_CONNS", 2),
		},
		Cache: CacheConfig{
			URL: envStr("DSC_CACHE_URL", ""),
		},
		AI: AIConfig{
			Google: GoogleConfig{
				APIKey:         envStr("DSC_AI_GOOGLE_API_KEY", ""),
				BaseURL:        envStr("DSC_AI_GOOGLE_BASE_URL", ""),
				Model:          envStr("DSC_AI_GOOGLE_MODEL", ""),
				ImageModel:     envStr("DSC_AI_GOOGLE_IMAGE_MODEL", ""),
				ThinkingBudget: envInt("DSC_AI_GOOGLE_THINKING_BUDGET", 2000),
			},
			OpenAI: OpenAIConfig{
				APIKey:  envStr("DSC_AI_OPENAI_API_KEY", ""),
				BaseURL: envStr("DSC_AI_OPENAI_BASE_URL", ""),
				Model:   envStr("DSC_AI_OPENAI_MODEL", ""),
			},
			Timeout: envInt("DSC_AI_TIMEOUT", 120),
		},
		Quiz: QuizConfig{
			FreeQuestionLimit: envInt("DSC_QUIZ_FREE_QUESTION_LIMIT", 10),
			SessionIdleTTL:    envInt("DSC_QUIZ_SESSION_IDLE_TTL", 120),
		},
		Export: ExportConfig{
			FontPath:      envStr("DSC_EXPORT_FONT_PATH", ""),
			MaxImageBytes: envInt("DSC_EXPORT_MAX_IMAGE_BYTES", 4<<20),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("DSC_RATE_LIMIT_PER_MINUTE", 10),
			Burst:     envInt("DSC_RATE_LIMIT_BURST", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("DSC_CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  envStr("DSC_LOG_LEVEL", "info"),
			Format: envStr("DSC_LOG_FORMAT", "json"),
		},
		SyllabusPath: envStr("DSC_SYLLABUS_PATH", ""),
	}

	return cfg, nil
}

// Validate checks that required configuration is present. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if !c.HasAIProvider() {
		errs = append(errs, fmt.Errorf("at least one AI provider must be configured (DSC_AI_GOOGLE_API_KEY or DSC_AI_OPENAI_API_KEY)"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("DSC_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("DSC_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("DSC_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format))
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, fmt.Errorf("DSC_RATE_LIMIT_PER_MINUTE and DSC_RATE_LIMIT_BURST must be positive"))
	}
	if c.Quiz.FreeQuestionLimit <= 0 {
		errs = append(errs, fmt.Errorf("DSC_QUIZ_FREE_QUESTION_LIMIT must be positive, got %d", c.Quiz.FreeQuestionLimit))
	}
	if c.AI.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("DSC_AI_TIMEOUT must be positive, got %d", c.AI.Timeout))
	}

	return errors.Join(errs...)
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.Google.APIKey != "" || c.AI.OpenAI.APIKey != ""
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
