// Package provider defines the interfaces used to talk to language models
// and embedding endpoints, and a role-based failover chain over them.
package provider

import "context"

// Provider sends chat completions to an LLM.
// Concrete implementations live in separate packages (e.g., modules/provider/openai).
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// Embedder turns text into a dense vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// HealthChecker is an optional interface that providers may implement so
// the chain can probe them while they are cooling down.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
