package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flemzord/seline/internal/provider"
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

func (p *Provider) buildChatRequest(req provider.CompletionRequest) chatRequest {
	cr := chatRequest{
		Model:    p.config.Model,
		Messages: toMessages(req.Messages),
	}

	// Request-level overrides take precedence over config defaults.
	switch {
	case req.MaxTokens > 0:
		cr.MaxTokens = req.MaxTokens
	case p.config.MaxTokens > 0:
		cr.MaxTokens = p.config.MaxTokens
	}
	switch {
	case req.Temperature != nil:
		cr.Temperature = req.Temperature
	case p.config.Temperature != nil:
		cr.Temperature = p.config.Temperature
	}
	return cr
}

func (p *Provider) endpoint(path string) string {
	u := strings.TrimRight(p.config.BaseURL, "/") + path
	if p.config.APIVersion != "" {
		u += "?api-version=" + url.QueryEscape(p.config.APIVersion)
	}
	return u
}

// doPost sends an authenticated JSON POST and returns the response body and
// status code. The body is limited to maxResponseSize bytes.
func (p *Provider) doPost(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIVersion != "" {
		httpReq.Header.Set("api-key", p.config.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("openai: read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// Complete sends a chat completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	body, status, err := p.doPost(ctx, "/chat/completions", p.buildChatRequest(req))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	if err := mapHTTPError(status, body); err != nil {
		return provider.CompletionResponse{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	out, err := fromResponse(&resp)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	p.logger.Debug("openai: completion",
		"model", p.config.Model,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"finish_reason", string(out.FinishReason),
	)
	return out, nil
}

// Embed returns the embedding vector of input. Newlines are replaced with
// spaces before embedding.
func (p *Provider) Embed(ctx context.Context, input string) ([]float32, error) {
	req := embeddingRequest{
		Model: p.config.EmbeddingModel,
		Input: strings.ReplaceAll(input, "\n", " "),
	}
	body, status, err := p.doPost(ctx, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	if err := mapHTTPError(status, body); err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openai: unmarshal embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, provider.ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}

// HealthCheck sends a minimal one-token completion, which exercises
// authentication, model access and quota.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Complete(ctx, provider.CompletionRequest{
		Messages:  []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: "hi"}},
		MaxTokens: 1,
	})
	return err
}

// ModelName returns the configured chat model.
func (p *Provider) ModelName() string {
	return p.config.Model
}
