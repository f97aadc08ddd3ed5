package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/seline/internal/provider"
	"github.com/google/go-cmp/cmp"
)

func newTestProvider(t *testing.T, cfg Config, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	cfg.BaseURL = srv.URL
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Timeout: "soon"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"api_key", "model", "timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	p := newTestProvider(t, Config{MaxTokens: 300}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		stop := "stop"
		writeJSON(t, w, chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "สวัสดีครับ"}, FinishReason: &stop}},
			Usage:   chatUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		})
	})

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		Temperature: provider.Temperature(0.1),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := provider.CompletionResponse{
		Content:      "สวัสดีครับ",
		FinishReason: provider.FinishReasonStop,
		Usage:        provider.TokenUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens != 300 || got.Temperature == nil || *got.Temperature != 0.1 {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_AzureAuth(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, Config{APIVersion: "2024-06-01"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-version") != "2024-06-01" {
			t.Errorf("api-version = %q", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "sk-test" || r.Header.Get("Authorization") != "" {
			t.Errorf("headers = %v", r.Header)
		}
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}}})
	})

	if _, err := p.Complete(context.Background(), provider.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, provider.ErrRateLimit},
		{http.StatusServiceUnavailable, `oops`, provider.ErrProviderDown},
		{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, errAuth},
		{http.StatusBadRequest, `{"error":{"message":"context_length_exceeded"}}`, provider.ErrContextLength},
		{http.StatusBadRequest, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, provider.ErrContextLength},
		{http.StatusBadRequest, `{"error":{"message":"filtered","code":"content_filter"}}`, provider.ErrContentFiltered},
		{http.StatusTooManyRequests, `{"error":{"message":"quota","code":"insufficient_quota"}}`, provider.ErrProviderDown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %v", tt.status, tt.want), func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := p.Complete(context.Background(), provider.CompletionRequest{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestComplete_NoChoices(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, chatResponse{})
	})
	if _, err := p.Complete(context.Background(), provider.CompletionRequest{}); !errors.Is(err, provider.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	var got embeddingRequest
	p := newTestProvider(t, Config{EmbeddingModel: "text-embedding-3-large"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.25,-0.5,1]}]}`))
	})

	vec, err := p.Embed(context.Background(), "ประกัน\nรถยนต์")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{0.25, -0.5, 1}, vec); diff != "" {
		t.Errorf("vector (-want +got):\n%s", diff)
	}
	if got.Input != "ประกัน รถยนต์" || got.Model != "text-embedding-3-large" {
		t.Errorf("request = %+v", got)
	}
}

func TestEmbed_Empty(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, provider.ErrEmptyResponse) {
		t.Errorf("err = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	var maxTokens int
	p := newTestProvider(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		maxTokens = req.MaxTokens
		writeJSON(t, w, chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "h"}}}})
	})
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if maxTokens != 1 {
		t.Errorf("max_tokens = %d, want 1", maxTokens)
	}
}
