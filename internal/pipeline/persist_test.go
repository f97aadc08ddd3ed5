package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/route"
)

func TestPersist_StoresOnlyPersistableRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resolved route.Route
		want     route.Route
	}{
		{route.InsuranceService, route.InsuranceService},
		{route.InsuranceProduct, route.InsuranceProduct},
		{route.OffTopic, route.OffTopic},
		{route.ContinueConversation, route.OffTopic},
		{route.More, route.OffTopic},
		{route.Reset, route.OffTopic},
		{route.None, route.OffTopic},
	}
	for _, tt := range tests {
		t.Run(string(tt.resolved)+"_", func(t *testing.T) {
			t.Parallel()

			store := conversation.NewMemoryStore()
			o := &Orchestrator{cfg: Config{
				Store:  store,
				Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
				Now:    func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
			}.withDefaults()}

			req := Request{BatchID: "b", UserID: "U1", Query: "q", ReplyHandle: "tok"}
			if n := o.persist(context.Background(), req, "a", tt.resolved); n != 2 {
				t.Fatalf("persisted %d turns, want 2", n)
			}
			turns, err := store.Recent(context.Background(), "U1", 10)
			if err != nil {
				t.Fatal(err)
			}
			for _, turn := range turns {
				if turn.Route != tt.want {
					t.Errorf("%s turn route = %q, want %q", turn.Sender, turn.Route, tt.want)
				}
			}
		})
	}
}
