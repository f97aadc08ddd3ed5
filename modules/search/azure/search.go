package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flemzord/seline/internal/pipeline"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseSize = 4 * 1024 * 1024

var (
	productFields = []string{"Product_Segment", "Product_Name", "Unique_Pros", "Benefit", "Condition", "Product_Description", "Product_URL"}
	serviceFields = []string{"Service_Segment", "Service_Name", "Service_Detail", "Service_URL"}
)

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchRequest struct {
	VectorQueries []vectorQuery `json:"vectorQueries"`
	Select        string        `json:"select"`
	Top           int           `json:"top"`
	Skip          int           `json:"skip,omitempty"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search implements pipeline.Retriever. No hits yields an empty string.
func (r *Retriever) Search(ctx context.Context, req pipeline.SearchRequest) (string, error) {
	index, fields, k := r.cfg.ProductIndex, productFields, r.cfg.ProductNeighbors
	if req.ServiceScoped {
		index, fields, k = r.cfg.ServiceIndex, serviceFields, r.cfg.ServiceNeighbors
	}

	ctx, span := r.tracer.Start(ctx, "search.Query", trace.WithAttributes(
		attribute.String("search.index", index),
		attribute.Int("search.top", req.TopK),
		attribute.Int("search.skip", req.Skip),
	))
	defer span.End()

	vec, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("search: embed query: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("search: rate limit wait: %w", err)
	}

	hits, err := r.query(ctx, index, searchRequest{
		VectorQueries: []vectorQuery{{Kind: "vector", Vector: vec, K: k, Fields: r.cfg.VectorField}},
		Select:        strings.Join(fields, ","),
		Top:           req.TopK,
		Skip:          req.Skip,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)))

	r.logger.Debug("search: query done", "index", index, "hits", len(hits), "top", req.TopK, "skip", req.Skip)
	if req.ServiceScoped {
		return formatServices(hits), nil
	}
	return formatProducts(hits), nil
}

func (r *Retriever) query(ctx context.Context, index string, body searchRequest) ([]map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		strings.TrimRight(r.cfg.Endpoint, "/"), url.PathEscape(index), url.QueryEscape(r.cfg.APIVersion))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", r.cfg.APIKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if err := mapHTTPError(resp.StatusCode, data); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("search: unmarshal response: %w", err)
	}
	return out.Value, nil
}

func mapHTTPError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := string(body)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrIndexNotFound, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrThrottled, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("search: HTTP %d: %s", status, msg)
	}
}
