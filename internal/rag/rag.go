// Package rag implements the model-backed collaborators of the pipeline:
// route classification, answer generation, follow-up condensing and
// history compaction.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/pipeline"
	"github.com/flemzord/seline/internal/provider"
)

// ErrNilProvider is returned by the constructors when no provider is given.
var ErrNilProvider = errors.New("rag: nil provider")

const (
	defaultCompany  = "'Thai Group Holdings Public Company Limited.' which has 2 BU 1.SE Life (อาคเนย์ประกันชีวิต) 2.INDARA (อินทรประกันภัย)"
	defaultLanguage = "Thai"
)

// Classifier asks a model for the route label of a query.
type Classifier struct {
	p provider.Provider
}

// NewClassifier creates a Classifier.
func NewClassifier(p provider.Provider) (*Classifier, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	return &Classifier{p: p}, nil
}

// Decide returns the raw label produced by the model. Normalization is
// left to the caller.
func (c *Classifier) Decide(ctx context.Context, query, history string) (string, error) {
	prompt, err := render(classifyTmpl, struct{ Query, History string }{query, history})
	if err != nil {
		return "", fmt.Errorf("rag: classify prompt: %w", err)
	}
	return complete(ctx, c.p, classifySystem, prompt, 0.1, 10)
}

// AnswererConfig configures an Answerer.
type AnswererConfig struct {
	// Company is how the assistant introduces its employer.
	Company string

	// Language of the replies. Defaults to Thai.
	Language string
}

// Answerer generates the final reply from query, context and history.
type Answerer struct {
	p   provider.Provider
	cfg AnswererConfig
}

// NewAnswerer creates an Answerer.
func NewAnswerer(p provider.Provider, cfg AnswererConfig) (*Answerer, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	if cfg.Company == "" {
		cfg.Company = defaultCompany
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	return &Answerer{p: p, cfg: cfg}, nil
}

// Generate implements pipeline.Answerer.
func (a *Answerer) Generate(ctx context.Context, req pipeline.AnswerRequest) (string, error) {
	prompt, err := render(answerTmpl, struct {
		Company, Language, Query, Context, History string
	}{a.cfg.Company, a.cfg.Language, req.Query, req.Context, req.History})
	if err != nil {
		return "", fmt.Errorf("rag: answer prompt: %w", err)
	}
	return complete(ctx, a.p, answerSystem, prompt, 0.7, 700)
}

// Summarizer condenses follow-up questions and compacts long histories.
type Summarizer struct {
	p provider.Provider
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(p provider.Provider) (*Summarizer, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	return &Summarizer{p: p}, nil
}

// Condense implements pipeline.Condenser.
func (s *Summarizer) Condense(ctx context.Context, query, priorUserTurn string) (string, error) {
	if strings.TrimSpace(priorUserTurn) == "" {
		return query, nil
	}
	prompt, err := render(condenseTmpl, struct{ Query, Prior string }{query, priorUserTurn})
	if err != nil {
		return "", fmt.Errorf("rag: condense prompt: %w", err)
	}
	return complete(ctx, s.p, condenseSystem, prompt, 0.2, 200)
}

// Compact implements conversation.Compactor.
func (s *Summarizer) Compact(ctx context.Context, rawHistory string, maxChars int) (string, error) {
	prompt, err := render(compactTmpl, struct {
		History  string
		MaxChars int
	}{rawHistory, maxChars})
	if err != nil {
		return "", fmt.Errorf("rag: compact prompt: %w", err)
	}
	return complete(ctx, s.p, compactSystem, prompt, 0.5, 1000)
}

func complete(ctx context.Context, p provider.Provider, system, user string, temperature float64, maxTokens int) (string, error) {
	resp, err := p.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: system},
			{Role: provider.MessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: provider.Temperature(temperature),
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", provider.ErrEmptyResponse
	}
	return out, nil
}

// Interface guards.
var (
	_ pipeline.Classifier    = (*Classifier)(nil)
	_ pipeline.Answerer      = (*Answerer)(nil)
	_ pipeline.Condenser     = (*Summarizer)(nil)
	_ conversation.Compactor = (*Summarizer)(nil)
)
