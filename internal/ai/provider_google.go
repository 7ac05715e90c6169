package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel      = "gemini-3-pro-preview"
	defaultGeminiImageModel = "gemini-3-pro-image-preview"
	defaultImageMIME        = "image/png"
)

// GoogleProvider implements Provider and ImageProvider for Google Gemini.
type GoogleProvider struct {
	apiKey         string
	baseURL        string
	client         *http.Client
	model          string
	imageModel     string
	thinkingBudget int
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL sets the base URL (for testing).
func WithGoogleBaseURL(url string) GoogleOption {
	return func(p *GoogleProvider) {
		p.baseURL = url
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.client = client
	}
}

// WithGoogleModels overrides the default text and image models. Empty values
// keep the defaults.
func WithGoogleModels(text, image string) GoogleOption {
	return func(p *GoogleProvider) {
		if text != "" {
			p.model = text
		}
		if image != "" {
			p.imageModel = image
		}
	}
}

// WithThinkingBudget sets the reasoning token budget for text requests.
func WithThinkingBudget(tokens int) GoogleOption {
	return func(p *GoogleProvider) {
		p.thinkingBudget = tokens
	}
}

// NewGoogleProvider creates a new Google Gemini provider.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		client:     http.DefaultClient,
		model:      defaultGeminiModel,
		imageModel: defaultGeminiImageModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// geminiRequest is the request body for the Gemini generateContent API.
type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens    int                   `json:"maxOutputTokens,omitempty"`
	Temperature        *float64              `json:"temperature,omitempty"`
	ResponseMimeType   string                `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage       `json:"responseJsonSchema,omitempty"`
	ResponseModalities []string              `json:"responseModalities,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig        *geminiImageConfig    `json:"imageConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

// geminiResponse is the response from the Gemini API.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	gemReq := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	system := req.System
	for _, m := range req.Messages {
		role := m.Role
		switch role {
		case "assistant":
			role = "model"
		case "system":
			// Gemini takes system text out of band.
			system = strings.TrimSpace(system + "\n\n" + m.Content)
			continue
		}
		gemReq.Contents = append(gemReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if system != "" {
		gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	if req.MaxTokens > 0 || req.Temperature > 0 || len(req.ResponseSchema) > 0 || p.thinkingBudget > 0 {
		config := &geminiGenerationConfig{}
		if req.MaxTokens > 0 {
			config.MaxOutputTokens = req.MaxTokens
		}
		if req.Temperature > 0 {
			temp := req.Temperature
			config.Temperature = &temp
		}
		if len(req.ResponseSchema) > 0 {
			config.ResponseMimeType = "application/json"
			config.ResponseJSONSchema = req.ResponseSchema
		}
		if p.thinkingBudget > 0 {
			config.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: p.thinkingBudget}
		}
		gemReq.GenerationConfig = config
	}

	gemResp, err := p.generate(ctx, model, gemReq)
	if err != nil {
		return CompletionResponse{}, err
	}

	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return CompletionResponse{}, fmt.Errorf("no content in response")
	}

	var text strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return CompletionResponse{
		Content:      text.String(),
		Model:        model,
		InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// GenerateImage draws a single 4:3 illustration and returns it as a data URL.
// A response without image data yields an empty DataURL and no error.
func (p *GoogleProvider) GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = p.imageModel
	}

	gemReq := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &geminiImageConfig{AspectRatio: "4:3", ImageSize: "1K"},
		},
	}

	gemResp, err := p.generate(ctx, model, gemReq)
	if err != nil {
		return ImageResponse{}, err
	}

	if len(gemResp.Candidates) > 0 {
		for _, part := range gemResp.Candidates[0].Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = defaultImageMIME
			}
			return ImageResponse{
				DataURL: "data:" + mime + ";base64," + part.InlineData.Data,
				Model:   model,
			}, nil
		}
	}
	return ImageResponse{Model: model}, nil
}

func (p *GoogleProvider) generate(ctx context.Context, model string, gemReq geminiRequest) (geminiResponse, error) {
	if p.apiKey == "" {
		return geminiResponse{}, fmt.Errorf("gemini: subscriber authentication required: %w", ErrAuthExpired)
	}

	body, err := json.Marshal(gemReq)
	if err != nil {
		return geminiResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return geminiResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return geminiResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return geminiResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isGeminiAuthError(resp.StatusCode, respBody) {
			return geminiResponse{}, fmt.Errorf("gemini api error (status %d): %w", resp.StatusCode, ErrAuthExpired)
		}
		return geminiResponse{}, fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return geminiResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return gemResp, nil
}

// isGeminiAuthError reports whether a failed call means the key or the
// subscriber session behind it is no longer valid.
func isGeminiAuthError(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusNotFound:
		return bytes.Contains(body, []byte("Requested entity was not found"))
	case http.StatusBadRequest:
		return bytes.Contains(body, []byte("API_KEY_INVALID"))
	}
	return false
}

func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
