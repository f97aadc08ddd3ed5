package conversation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/conversation/conversationtest"
	"github.com/flemzord/seline/internal/route"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func seed(t *testing.T, s conversation.Store, turns ...conversation.Turn) {
	t.Helper()
	for _, turn := range turns {
		if err := s.Append(context.Background(), turn); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func userTurn(msg string, r route.Route) conversation.Turn {
	return conversation.Turn{UserID: "u1", Sender: conversation.SenderUser, Message: msg, Route: r}
}

func assistantTurn(msg string, r route.Route) conversation.Turn {
	return conversation.Turn{UserID: "u1", Sender: conversation.SenderAssistant, Message: msg, Route: r}
}

func TestReader_StateEmptyHistory(t *testing.T) {
	t.Parallel()

	r := conversation.NewReader(conversation.ReaderConfig{Store: conversation.NewMemoryStore()})
	st, err := r.State(context.Background(), "u1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !st.Empty() {
		t.Errorf("expected empty state, got %+v", st)
	}
	if st.LatestRoute != route.None {
		t.Errorf("LatestRoute = %q, want none", st.LatestRoute)
	}
}

func TestReader_StateDerivesFields(t *testing.T) {
	t.Parallel()

	store := conversation.NewMemoryStore()
	seed(t, store,
		userTurn("first", route.InsuranceProduct),
		assistantTurn("a1", route.InsuranceProduct),
		userTurn("second", route.InsuranceService),
		assistantTurn("a2", route.InsuranceService),
		userTurn("third", route.InsuranceService),
		assistantTurn("a3", route.InsuranceService),
	)

	r := conversation.NewReader(conversation.ReaderConfig{Store: store})
	st, err := r.State(context.Background(), "u1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}

	wantHistory := "user: first\nassistant: a1\nuser: second\nassistant: a2\nuser: third\nassistant: a3"
	if st.SummarizedHistory != wantHistory {
		t.Errorf("history = %q, want %q", st.SummarizedHistory, wantHistory)
	}
	if st.LatestRoute != route.InsuranceService {
		t.Errorf("LatestRoute = %q", st.LatestRoute)
	}
	if st.LatestUserMessage != "second\nthird" {
		t.Errorf("LatestUserMessage = %q", st.LatestUserMessage)
	}
}

func TestReader_HistoryLimitWindow(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	var gotN int
	store.RecentFunc = func(ctx context.Context, userID string, n int) ([]conversation.Turn, error) {
		gotN = n
		return store.Base().Recent(ctx, userID, n)
	}

	r := conversation.NewReader(conversation.ReaderConfig{Store: store})
	if _, err := r.State(context.Background(), "u1"); err != nil {
		t.Fatalf("state: %v", err)
	}
	if gotN != 20 {
		t.Errorf("history limit = %d, want default 20", gotN)
	}
}

func TestReader_StateStoreError(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	boom := errors.New("boom")
	store.RecentFunc = func(context.Context, string, int) ([]conversation.Turn, error) {
		return nil, boom
	}

	r := conversation.NewReader(conversation.ReaderConfig{Store: store})
	if _, err := r.State(context.Background(), "u1"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestCompactIfOversized_UnderBudget(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	seed(t, store, userTurn("hello", route.OffTopic), assistantTurn("hi", route.OffTopic))

	called := false
	r := conversation.NewReader(conversation.ReaderConfig{
		Store:    store,
		MaxChars: 100,
		Compactor: conversationtest.CompactorFunc(func(context.Context, string, int) (string, error) {
			called = true
			return "", nil
		}),
	})

	turns := store.Turns("u1")
	text, compacted := r.CompactIfOversized(context.Background(), "u1", turns)
	if compacted || called {
		t.Fatal("compaction ran under budget")
	}
	if text != "user: hello\nassistant: hi" {
		t.Errorf("text = %q", text)
	}
	if _, _, _, replaces := store.Calls(); replaces != 0 {
		t.Errorf("store rewritten %d times", replaces)
	}
}

func TestCompactIfOversized_ReplacesHistory(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	long := strings.Repeat("ประกัน", 10)
	seed(t, store,
		userTurn(long, route.InsuranceProduct),
		assistantTurn(long, route.InsuranceProduct),
	)

	var gotMax int
	r := conversation.NewReader(conversation.ReaderConfig{
		Store:    store,
		MaxChars: 50,
		Now:      func() time.Time { return fixedNow },
		Compactor: conversationtest.CompactorFunc(func(_ context.Context, raw string, maxChars int) (string, error) {
			gotMax = maxChars
			return "  short summary \n", nil
		}),
	})

	text, compacted := r.CompactIfOversized(context.Background(), "u1", store.Turns("u1"))
	if !compacted {
		t.Fatal("expected compaction")
	}
	if text != "short summary" {
		t.Errorf("text = %q", text)
	}
	if gotMax != 50 {
		t.Errorf("maxChars passed = %d", gotMax)
	}

	stored := store.Turns("u1")
	if len(stored) != 1 {
		t.Fatalf("stored %d turns, want 1", len(stored))
	}
	got := stored[0]
	if got.Sender != conversation.SenderAssistant || got.Message != "short summary" ||
		got.Route != route.InsuranceProduct || !got.Timestamp.Equal(fixedNow) {
		t.Errorf("summary turn = %+v", got)
	}
}

func TestCompactIfOversized_CountsRunes(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	// 12 Thai runes is 36 bytes; "user: " adds 6 runes.
	seed(t, store, userTurn("ประกันรถยนต์", route.InsuranceProduct))

	r := conversation.NewReader(conversation.ReaderConfig{
		Store:    store,
		MaxChars: 20,
		Compactor: conversationtest.CompactorFunc(func(context.Context, string, int) (string, error) {
			t.Error("compactor called for history within rune budget")
			return "", nil
		}),
	})
	if _, compacted := r.CompactIfOversized(context.Background(), "u1", store.Turns("u1")); compacted {
		t.Error("compacted within budget")
	}
}

func TestCompactIfOversized_CompactorError(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	seed(t, store, userTurn(strings.Repeat("x", 30), route.OffTopic))

	r := conversation.NewReader(conversation.ReaderConfig{
		Store:    store,
		MaxChars: 10,
		Compactor: conversationtest.CompactorFunc(func(context.Context, string, int) (string, error) {
			return "", errors.New("model down")
		}),
	})

	text, compacted := r.CompactIfOversized(context.Background(), "u1", store.Turns("u1"))
	if compacted {
		t.Error("reported compaction after compactor error")
	}
	if !strings.HasPrefix(text, "user: xxx") {
		t.Errorf("text = %q, want raw transcript", text)
	}
	if len(store.Turns("u1")) != 1 {
		t.Error("history modified after compactor error")
	}
}

func TestReader_StateAfterCompactionKeepsLatestFields(t *testing.T) {
	t.Parallel()

	store := conversationtest.NewMockStore()
	seed(t, store,
		userTurn(strings.Repeat("a", 40), route.InsuranceService),
		assistantTurn(strings.Repeat("b", 40), route.InsuranceService),
	)

	r := conversation.NewReader(conversation.ReaderConfig{
		Store:    store,
		MaxChars: 30,
		Compactor: conversationtest.CompactorFunc(func(context.Context, string, int) (string, error) {
			return "summary", nil
		}),
	})

	st, err := r.State(context.Background(), "u1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.SummarizedHistory != "summary" {
		t.Errorf("history = %q", st.SummarizedHistory)
	}
	if st.LatestRoute != route.InsuranceService {
		t.Errorf("LatestRoute = %q", st.LatestRoute)
	}
	if st.LatestUserMessage != strings.Repeat("a", 40) {
		t.Errorf("LatestUserMessage = %q", st.LatestUserMessage)
	}
}
