package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers.
type MockProvider struct {
	Response string
	Err      error
	Image    string // data URL returned by GenerateImage
	ImageErr error

	mu          sync.Mutex
	LastRequest *CompletionRequest // captures the last request for inspection
	Calls       int
	ImageCalls  int
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRequest = &req
	m.Calls++
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}
	return CompletionResponse{
		Content:      m.Response,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(m.Response),
	}, nil
}

func (m *MockProvider) GenerateImage(_ context.Context, _ ImageRequest) (ImageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ImageCalls++
	if m.ImageErr != nil {
		return ImageResponse{}, m.ImageErr
	}
	return ImageResponse{DataURL: m.Image, Model: "mock-image"}, nil
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
