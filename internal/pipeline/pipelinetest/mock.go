// Package pipelinetest provides test doubles for the pipeline collaborators.
package pipelinetest

import (
	"context"
	"sync"

	"github.com/flemzord/seline/internal/pipeline"
)

// MockClassifier is a test double for pipeline.Classifier.
type MockClassifier struct {
	DecideFunc func(ctx context.Context, query, history string) (string, error)

	mu    sync.Mutex
	calls []ClassifyCall
}

// ClassifyCall records the arguments of one Decide call.
type ClassifyCall struct {
	Query   string
	History string
}

// Label returns a classifier that always answers label.
func Label(label string) *MockClassifier {
	return &MockClassifier{DecideFunc: func(context.Context, string, string) (string, error) {
		return label, nil
	}}
}

// Decide records the call and delegates to DecideFunc.
func (m *MockClassifier) Decide(ctx context.Context, query, history string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ClassifyCall{Query: query, History: history})
	m.mu.Unlock()
	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, query, history)
	}
	return "", nil
}

// Calls returns the recorded calls.
func (m *MockClassifier) Calls() []ClassifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ClassifyCall(nil), m.calls...)
}

// MockRetriever is a test double for pipeline.Retriever. Without
// SearchFunc it returns "ctx:" followed by the query.
type MockRetriever struct {
	SearchFunc func(ctx context.Context, req pipeline.SearchRequest) (string, error)

	mu   sync.Mutex
	reqs []pipeline.SearchRequest
}

// Search records the request and delegates to SearchFunc.
func (m *MockRetriever) Search(ctx context.Context, req pipeline.SearchRequest) (string, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, req)
	}
	return "ctx:" + req.Query, nil
}

// Requests returns the recorded requests.
func (m *MockRetriever) Requests() []pipeline.SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.SearchRequest(nil), m.reqs...)
}

// MockCondenser is a test double for pipeline.Condenser.
type MockCondenser struct {
	CondenseFunc func(ctx context.Context, query, prior string) (string, error)

	mu    sync.Mutex
	calls [][2]string
}

// Condense records the call and delegates to CondenseFunc.
func (m *MockCondenser) Condense(ctx context.Context, query, prior string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, [2]string{query, prior})
	m.mu.Unlock()
	if m.CondenseFunc != nil {
		return m.CondenseFunc(ctx, query, prior)
	}
	return prior + " " + query, nil
}

// Calls returns the recorded (query, prior) pairs.
func (m *MockCondenser) Calls() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]string(nil), m.calls...)
}

// MockAnswerer is a test double for pipeline.Answerer. Without
// GenerateFunc it answers "answer:" followed by the query.
type MockAnswerer struct {
	GenerateFunc func(ctx context.Context, req pipeline.AnswerRequest) (string, error)

	mu   sync.Mutex
	reqs []pipeline.AnswerRequest
}

// Generate records the request and delegates to GenerateFunc.
func (m *MockAnswerer) Generate(ctx context.Context, req pipeline.AnswerRequest) (string, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "answer:" + req.Query, nil
}

// Requests returns the recorded requests.
func (m *MockAnswerer) Requests() []pipeline.AnswerRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.AnswerRequest(nil), m.reqs...)
}

// Reply is one delivered reply.
type Reply struct {
	Handle string
	Text   string
}

// MockNotifier is a test double for pipeline.Notifier. Every attempt is
// recorded, including failed ones.
type MockNotifier struct {
	ReplyFunc func(ctx context.Context, handle, text string) error

	mu       sync.Mutex
	attempts []Reply
}

// Reply records the attempt and delegates to ReplyFunc.
func (m *MockNotifier) Reply(ctx context.Context, handle, text string) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, Reply{Handle: handle, Text: text})
	m.mu.Unlock()
	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, handle, text)
	}
	return nil
}

// Attempts returns every recorded attempt.
func (m *MockNotifier) Attempts() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reply(nil), m.attempts...)
}
