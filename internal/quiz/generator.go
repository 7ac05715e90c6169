package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/p-n-ai/dsc-prep/internal/ai"
)

// Generator produces the question list for a request.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) ([]Question, error)
}

// Illustrator draws an image for a visual prompt. An empty result means no
// image is available and is not an error.
type Illustrator interface {
	Illustrate(ctx context.Context, prompt string, lang Language) (string, error)
}

// Observer receives the outcome of every AI call, for metrics.
type Observer func(task ai.TaskType, elapsed time.Duration, err error)

// AIGenerator generates questions through an AI provider using structured
// JSON output.
type AIGenerator struct {
	provider ai.Provider
	model    string
	observe  Observer
}

// GeneratorOption configures an AIGenerator.
type GeneratorOption func(*AIGenerator)

// WithModel pins the model name sent to the provider.
func WithModel(model string) GeneratorOption {
	return func(g *AIGenerator) {
		g.model = model
	}
}

// WithObserver registers a callback for every generation call.
func WithObserver(o Observer) GeneratorOption {
	return func(g *AIGenerator) {
		g.observe = o
	}
}

// NewAIGenerator creates a generator backed by provider.
func NewAIGenerator(provider ai.Provider, opts ...GeneratorOption) *AIGenerator {
	g := &AIGenerator{provider: provider}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate requests, validates and maps the questions. Every failure wraps
// ErrGeneration; provider auth failures also keep ai.ErrAuthExpired.
func (g *AIGenerator) Generate(ctx context.Context, req GenerationRequest) ([]Question, error) {
	start := time.Now()
	questions, err := g.generate(ctx, req)
	if g.observe != nil {
		g.observe(ai.TaskQuestions, time.Since(start), err)
	}
	return questions, err
}

func (g *AIGenerator) generate(ctx context.Context, req GenerationRequest) ([]Question, error) {
	resp, err := g.provider.Complete(ctx, ai.CompletionRequest{
		System:         req.SystemPrompt(),
		Messages:       []ai.Message{{Role: "user", Content: req.UserPrompt()}},
		Model:          g.model,
		Task:           ai.TaskQuestions,
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	records, err := parseQuestions(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(records) != req.Count {
		slog.Warn("generator returned a different question count",
			"requested", req.Count,
			"received", len(records),
			"model", resp.Model,
		)
	}
	slog.Debug("questions generated",
		"count", len(records),
		"model", resp.Model,
		"tokens", resp.TotalTokens(),
	)

	return lo.Map(records, func(r questionRecord, _ int) Question {
		q := Question{
			ID:                 uuid.NewString(),
			Text:               r.QuestionText,
			Options:            r.Options,
			CorrectAnswerIndex: r.CorrectAnswerIndex,
			Explanation:        r.Explanation,
			AdditionalInfo:     r.AdditionalInfo,
			VisualPrompt:       r.VisualPrompt,
			Section:            r.Section,
		}
		if req.IsPYQ {
			q.SourceExam = r.SourceExam
			q.SourceYear = r.SourceYear
		}
		return q
	}), nil
}

// AIIllustrator draws question illustrations through an image provider.
type AIIllustrator struct {
	provider ai.ImageProvider
	observe  Observer
}

// NewAIIllustrator creates an illustrator backed by provider. observe may be nil.
func NewAIIllustrator(provider ai.ImageProvider, observe Observer) *AIIllustrator {
	return &AIIllustrator{provider: provider, observe: observe}
}

// Illustrate returns a data URL, or "" when the model produced no image.
func (a *AIIllustrator) Illustrate(ctx context.Context, prompt string, lang Language) (string, error) {
	if prompt == "" {
		return "", nil
	}
	if !lang.Valid() {
		lang = English
	}

	start := time.Now()
	resp, err := a.provider.GenerateImage(ctx, ai.ImageRequest{Prompt: illustrationPrompt(prompt, lang)})
	if a.observe != nil {
		a.observe(ai.TaskIllustration, time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, ai.ErrNoProvider) {
			return "", nil
		}
		return "", fmt.Errorf("illustrate: %w", err)
	}
	return resp.DataURL, nil
}

func illustrationPrompt(visual string, lang Language) string {
	return fmt.Sprintf(`Premium educational diagram for %s medium syllabus: %s.
Mandatory Requirements:
1. All text labels must be in clear, readable English font.
2. Professional textbook aesthetic, white background.
3. Precise vectors, high contrast, minimalist colors.`, lang, visual)
}
