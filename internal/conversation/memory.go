package conversation

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe, in-memory implementation of Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string][]Turn
}

// NewMemoryStore creates a new empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string][]Turn),
	}
}

// Compile-time interface checks.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Pinger = (*MemoryStore)(nil)
)

// Append adds a turn to the user's log.
func (s *MemoryStore) Append(_ context.Context, turn Turn) error {
	if turn.UserID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[turn.UserID] = append(s.users[turn.UserID], turn)
	return nil
}

// Recent returns the n most recent turns in chronological order.
func (s *MemoryStore) Recent(_ context.Context, userID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.users[userID]
	if n > len(turns) {
		n = len(turns)
	}
	result := make([]Turn, n)
	copy(result, turns[len(turns)-n:])
	return result, nil
}

// Clear removes every turn of the user.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Replace swaps the user's whole log for a single turn.
func (s *MemoryStore) Replace(_ context.Context, userID string, turn Turn) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	turn.UserID = userID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = []Turn{turn}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of turns stored for a user.
func (s *MemoryStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}
