package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openaiReply(w http.ResponseWriter, model, content string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"model":"` + model + `","choices":[{"message":{"content":` + quote(content) + `}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}

		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Model != "gpt-4o" {
			t.Errorf("model = %q, want %q", req.Model, "gpt-4o")
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.ResponseFormat != nil {
			t.Errorf("response_format should be omitted without a schema")
		}

		openaiReply(w, "gpt-4o", "Hi there!")
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	resp, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
		Model:    "gpt-4o",
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hi there!" {
		t.Errorf("content = %q, want %q", resp.Content, "Hi there!")
	}
	if resp.InputTokens != 10 {
		t.Errorf("input_tokens = %d, want 10", resp.InputTokens)
	}
	if resp.OutputTokens != 5 {
		t.Errorf("output_tokens = %d, want 5", resp.OutputTokens)
	}
}

func TestOpenAIProvider_Complete_SystemAndSchema(t *testing.T) {
	var received openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		openaiReply(w, "gpt-4o-mini", `{"questions":[]}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		System:         "You are an AP DSC question setter.",
		Messages:       []Message{{Role: "user", Content: "generate"}},
		Task:           TaskQuestions,
		ResponseSchema: json.RawMessage(`{"type":"object"}`),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(received.Messages) != 2 || received.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system message first", received.Messages)
	}
	if received.ResponseFormat == nil || received.ResponseFormat.Type != "json_schema" {
		t.Fatalf("response_format = %+v, want json_schema", received.ResponseFormat)
	}
	if received.ResponseFormat.JSONSchema.Name != "questions" || !received.ResponseFormat.JSONSchema.Strict {
		t.Errorf("json_schema = %+v, want strict questions schema", received.ResponseFormat.JSONSchema)
	}
}

func TestOpenAIProvider_Complete_APIError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantAuth   bool
	}{
		{"rate limited", http.StatusTooManyRequests, false},
		{"bad key", http.StatusUnauthorized, true},
		{"revoked key", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

			_, err := provider.Complete(t.Context(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
			})

			if err == nil {
				t.Fatal("Complete() should return error on API error")
			}
			if errors.Is(err, ErrAuthExpired) != tt.wantAuth {
				t.Errorf("errors.Is(err, ErrAuthExpired) = %v, want %v", !tt.wantAuth, tt.wantAuth)
			}
		})
	}
}

func TestOpenAIProvider_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openaiResponse{Choices: nil})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	if err == nil {
		t.Fatal("Complete() should return error when no choices")
	}
}

func TestOpenAIProvider_Complete_TruncatedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"{\"questions\":[{\"question\""},"finish_reason":"length"}]}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))

	_, err := provider.Complete(t.Context(), CompletionRequest{
		Task:           TaskQuestions,
		Messages:       []Message{{Role: "user", Content: "40 questions"}},
		ResponseSchema: json.RawMessage(`{"type":"object"}`),
	})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("Complete() error = %v, want ErrTruncated", err)
	}
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			provider := NewOpenAIProvider("test-key", WithBaseURL(server.URL))
			err := provider.HealthCheck(t.Context())

			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	tests := []struct {
		name string
		opts []OpenAIOption
		want string
	}{
		{"built-in default", nil, "gpt-4o-mini"},
		{"configured default", []OpenAIOption{WithDefaultModel("deepseek-chat")}, "deepseek-chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedModel string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req openaiRequest
				json.NewDecoder(r.Body).Decode(&req)
				receivedModel = req.Model
				openaiReply(w, req.Model, "ok")
			}))
			defer server.Close()

			opts := append([]OpenAIOption{WithBaseURL(server.URL)}, tt.opts...)
			provider := NewOpenAIProvider("test-key", opts...)

			_, err := provider.Complete(t.Context(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if receivedModel != tt.want {
				t.Errorf("model = %q, want %q", receivedModel, tt.want)
			}
		})
	}
}
