// Package conversationtest provides test helpers for the conversation package.
package conversationtest

import (
	"context"
	"sync"

	"github.com/flemzord/seline/internal/conversation"
)

// MockStore is a test double for conversation.Store. Unset Func fields
// fall through to an in-memory store, so tests only override the calls
// they want to fail or observe. All methods are safe for concurrent use.
type MockStore struct {
	AppendFunc  func(ctx context.Context, turn conversation.Turn) error
	RecentFunc  func(ctx context.Context, userID string, n int) ([]conversation.Turn, error)
	ClearFunc   func(ctx context.Context, userID string) error
	ReplaceFunc func(ctx context.Context, userID string, turn conversation.Turn) error

	base *conversation.MemoryStore

	mu           sync.Mutex
	AppendCalls  int
	RecentCalls  int
	ClearCalls   int
	ReplaceCalls int
}

// NewMockStore creates a MockStore backed by an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{base: conversation.NewMemoryStore()}
}

// Base returns the in-memory store used for unset funcs.
func (m *MockStore) Base() *conversation.MemoryStore { return m.base }

// Append delegates to AppendFunc or the base store.
func (m *MockStore) Append(ctx context.Context, turn conversation.Turn) error {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, turn)
	}
	return m.base.Append(ctx, turn)
}

// Recent delegates to RecentFunc or the base store.
func (m *MockStore) Recent(ctx context.Context, userID string, n int) ([]conversation.Turn, error) {
	m.mu.Lock()
	m.RecentCalls++
	m.mu.Unlock()
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, userID, n)
	}
	return m.base.Recent(ctx, userID, n)
}

// Clear delegates to ClearFunc or the base store.
func (m *MockStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	m.ClearCalls++
	m.mu.Unlock()
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, userID)
	}
	return m.base.Clear(ctx, userID)
}

// Replace delegates to ReplaceFunc or the base store.
func (m *MockStore) Replace(ctx context.Context, userID string, turn conversation.Turn) error {
	m.mu.Lock()
	m.ReplaceCalls++
	m.mu.Unlock()
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, userID, turn)
	}
	return m.base.Replace(ctx, userID, turn)
}

// Turns returns every turn stored for the user in the base store.
func (m *MockStore) Turns(userID string) []conversation.Turn {
	turns, _ := m.base.Recent(context.Background(), userID, m.base.Len(userID))
	return turns
}

// Calls returns a snapshot of the call counters as (append, recent, clear, replace).
func (m *MockStore) Calls() (appendCalls, recentCalls, clearCalls, replaceCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendCalls, m.RecentCalls, m.ClearCalls, m.ReplaceCalls
}

// CompactorFunc adapts a function to conversation.Compactor.
type CompactorFunc func(ctx context.Context, rawHistory string, maxChars int) (string, error)

// Compact calls f.
func (f CompactorFunc) Compact(ctx context.Context, rawHistory string, maxChars int) (string, error) {
	return f(ctx, rawHistory, maxChars)
}

// Interface guards.
var (
	_ conversation.Store     = (*MockStore)(nil)
	_ conversation.Compactor = CompactorFunc(nil)
)
