// Package ai provides a provider-agnostic gateway to generative models for
// structured text and image generation.
package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrAuthExpired is returned when the provider rejects the API key or the
// subscriber session behind it.
var ErrAuthExpired = errors.New("subscriber session expired")

// ErrNoProvider is returned when nothing is registered for a capability.
var ErrNoProvider = errors.New("no AI provider configured")

// TaskType defines the kind of AI task for routing and metrics.
type TaskType int

const (
	TaskQuestions TaskType = iota
	TaskIllustration
)

func (t TaskType) String() string {
	switch t {
	case TaskQuestions:
		return "questions"
	case TaskIllustration:
		return "illustration"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`

	// ResponseSchema asks for JSON output matching this schema. Empty means
	// free text.
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ImageRequest asks for a single illustration.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// ImageResponse carries the generated image as a data URL. DataURL is empty
// when the model returned no image.
type ImageResponse struct {
	DataURL string `json:"data_url"`
	Model   string `json:"model"`
}

// Provider is the interface all text providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}

// ImageProvider is implemented by providers that can draw.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error)
}
