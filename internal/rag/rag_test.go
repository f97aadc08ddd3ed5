package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flemzord/seline/internal/pipeline"
	"github.com/flemzord/seline/internal/provider"
	"github.com/flemzord/seline/internal/provider/providertest"
	"github.com/flemzord/seline/internal/rag"
)

func TestConstructors_RejectNilProvider(t *testing.T) {
	t.Parallel()

	if _, err := rag.NewClassifier(nil); !errors.Is(err, rag.ErrNilProvider) {
		t.Errorf("NewClassifier err = %v", err)
	}
	if _, err := rag.NewAnswerer(nil, rag.AnswererConfig{}); !errors.Is(err, rag.ErrNilProvider) {
		t.Errorf("NewAnswerer err = %v", err)
	}
	if _, err := rag.NewSummarizer(nil); !errors.Is(err, rag.ErrNilProvider) {
		t.Errorf("NewSummarizer err = %v", err)
	}
}

func TestClassifier_Decide(t *testing.T) {
	t.Parallel()

	p := providertest.Reply("  INSURANCE_PRODUCT\n")
	c, _ := rag.NewClassifier(p)

	label, err := c.Decide(context.Background(), "ขอดู ประกันรถยนต์", "")
	if err != nil {
		t.Fatal(err)
	}
	if label != "INSURANCE_PRODUCT" {
		t.Errorf("label = %q", label)
	}

	req := p.Requests()[0]
	if req.MaxTokens != 10 || req.Temperature == nil || *req.Temperature != 0.1 {
		t.Errorf("request params = %d, %v", req.MaxTokens, req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.MessageRoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "User Query: ขอดู ประกันรถยนต์") || !strings.Contains(user, "Conversation History: None") {
		t.Errorf("prompt missing query or empty-history marker:\n%s", user)
	}
}

func TestClassifier_PropagatesErrors(t *testing.T) {
	t.Parallel()

	c, _ := rag.NewClassifier(providertest.Fail(provider.ErrRateLimit))
	if _, err := c.Decide(context.Background(), "q", ""); !errors.Is(err, provider.ErrRateLimit) {
		t.Errorf("err = %v", err)
	}

	c, _ = rag.NewClassifier(providertest.Reply("   "))
	if _, err := c.Decide(context.Background(), "q", ""); !errors.Is(err, provider.ErrEmptyResponse) {
		t.Errorf("blank reply err = %v, want ErrEmptyResponse", err)
	}
}

func TestAnswerer_Generate(t *testing.T) {
	t.Parallel()

	p := providertest.Reply("ประกันรถยนต์ชั้น 1 คุ้มครองครบ")
	a, _ := rag.NewAnswerer(p, rag.AnswererConfig{Company: "ACME Insurance"})

	answer, err := a.Generate(context.Background(), pipeline.AnswerRequest{
		Query:   "ชั้น 1 ดีไหม",
		Context: "Product Name: Motor 1",
		History: "user: ประกันรถ",
	})
	if err != nil || answer != "ประกันรถยนต์ชั้น 1 คุ้มครองครบ" {
		t.Fatalf("Generate = %q, %v", answer, err)
	}

	req := p.Requests()[0]
	if req.MaxTokens != 700 || *req.Temperature != 0.7 {
		t.Errorf("params = %d, %v", req.MaxTokens, *req.Temperature)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"ACME Insurance", "Respond in Thai", "Context: Product Name: Motor 1", "Conversation History: user: ประกันรถ", "Question: ชั้น 1 ดีไหม"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestSummarizer_Condense(t *testing.T) {
	t.Parallel()

	p := providertest.Reply("ราคาประกันรถยนต์ชั้น 1")
	s, _ := rag.NewSummarizer(p)

	got, err := s.Condense(context.Background(), "ราคาเท่าไหร่", "ประกันรถยนต์ชั้น 1")
	if err != nil || got != "ราคาประกันรถยนต์ชั้น 1" {
		t.Fatalf("Condense = %q, %v", got, err)
	}
	if !strings.Contains(p.Requests()[0].Messages[1].Content, "Follow-up question: ราคาเท่าไหร่") {
		t.Error("prompt does not carry the follow-up")
	}

	// Without a prior turn there is nothing to condense.
	got, err = s.Condense(context.Background(), "ราคาเท่าไหร่", "")
	if err != nil || got != "ราคาเท่าไหร่" {
		t.Errorf("Condense without prior = %q, %v", got, err)
	}
	if p.CompleteCalls != 1 {
		t.Errorf("calls = %d, want 1", p.CompleteCalls)
	}
}

func TestSummarizer_Compact(t *testing.T) {
	t.Parallel()

	p := providertest.Reply("summary")
	s, _ := rag.NewSummarizer(p)

	got, err := s.Compact(context.Background(), "user: a\nassistant: b", 3500)
	if err != nil || got != "summary" {
		t.Fatalf("Compact = %q, %v", got, err)
	}
	req := p.Requests()[0]
	if req.MaxTokens != 1000 || !strings.Contains(req.Messages[1].Content, "under 3500 characters") {
		t.Errorf("request = %+v", req)
	}
}
