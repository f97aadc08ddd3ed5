// Package azure implements pipeline.Retriever over Azure AI Search vector
// queries. Products and services live in two indexes with different
// fields; hits are rendered as labelled text blocks for the answer prompt.
package azure

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/seline/internal/pipeline"
	"github.com/flemzord/seline/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Sentinel errors.
var (
	ErrIndexNotFound = errors.New("search: index not found")
	ErrUnauthorized  = errors.New("search: unauthorized")
	ErrThrottled     = errors.New("search: throttled")
	ErrUnavailable   = errors.New("search: service unavailable")
)

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable)
}

// Config configures the Azure AI Search client.
type Config struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	APIVersion   string `yaml:"api_version"`
	ProductIndex string `yaml:"product_index"`
	ServiceIndex string `yaml:"service_index"`
	VectorField  string `yaml:"vector_field"`

	// ProductNeighbors and ServiceNeighbors are the k of the nearest
	// neighbour query. Defaults: 100 and 50.
	ProductNeighbors int `yaml:"product_neighbors"`
	ServiceNeighbors int `yaml:"service_neighbors"`

	// QPS throttles outgoing queries. Zero disables throttling.
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`

	Timeout string `yaml:"timeout"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.APIVersion == "" {
		c.APIVersion = "2023-11-01"
	}
	if c.VectorField == "" {
		c.VectorField = "text_vector"
	}
	if c.ProductNeighbors <= 0 {
		c.ProductNeighbors = 100
	}
	if c.ServiceNeighbors <= 0 {
		c.ServiceNeighbors = 50
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("search: endpoint is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("search: api_key is required"))
	}
	if c.ProductIndex == "" {
		errs = append(errs, errors.New("search: product_index is required"))
	}
	if c.ServiceIndex == "" {
		errs = append(errs, errors.New("search: service_index is required"))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("search: invalid timeout %q: %w", c.Timeout, err))
	}
	return errors.Join(errs...)
}

// Retriever queries the product or service index with the embedding of
// the query.
type Retriever struct {
	cfg      Config
	embedder provider.Embedder
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Retriever.
func New(cfg Config, embedder provider.Embedder, logger *slog.Logger) (*Retriever, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, errors.New("search: embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	timeout, _ := time.ParseDuration(cfg.Timeout)
	return &Retriever{
		cfg:      cfg,
		embedder: embedder,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger,
		tracer:   otel.Tracer("github.com/flemzord/seline/modules/search/azure"),
	}, nil
}

var _ pipeline.Retriever = (*Retriever)(nil)
