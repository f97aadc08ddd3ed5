// Package openai implements provider.Provider and provider.Embedder over the
// OpenAI Chat Completions and Embeddings APIs. Azure OpenAI deployments are
// supported through BaseURL, APIVersion and the api-key header.
package openai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/seline/internal/provider"
)

// Config holds the configuration of the OpenAI client.
type Config struct {
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	EmbeddingModel string   `yaml:"embedding_model"`
	BaseURL        string   `yaml:"base_url"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    *float64 `yaml:"temperature"`
	Timeout        string   `yaml:"timeout"`

	// APIVersion is appended as ?api-version= and switches authentication
	// to the api-key header, as Azure OpenAI expects.
	APIVersion string `yaml:"api_version"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("openai: api_key is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("openai: model is required"))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("openai: invalid timeout %q: %w", c.Timeout, err))
	}
	return errors.Join(errs...)
}

// Provider is an OpenAI API client.
type Provider struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

// New creates a Provider. A nil logger means slog.Default().
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout, _ := time.ParseDuration(cfg.Timeout)
	return &Provider{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.Embedder      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)
