package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/route"
	"github.com/google/uuid"
)

func TestConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults with dsn", cfg: Config{DSN: "postgres://localhost/seline"}},
		{name: "missing dsn", cfg: Config{}, wantErr: true},
		{name: "idle above open", cfg: Config{DSN: "x", MaxOpenConns: 2, MaxIdleConns: 5}, wantErr: true},
		{name: "negative open", cfg: Config{DSN: "x", MaxOpenConns: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			if cfg.MaxOpenConns == 0 {
				cfg.Defaults()
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{}, nil); err == nil {
		t.Fatal("Open without DSN should fail")
	}
}

// TestStore_Live runs against a real database when SELINE_TEST_POSTGRES_DSN
// is set.
func TestStore_Live(t *testing.T) {
	dsn := os.Getenv("SELINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SELINE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	user := "test-" + uuid.NewString()
	defer func() { _ = s.Clear(ctx, user) }()

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, msg := range []string{"one", "two", "three"} {
		if err := s.Append(ctx, conversation.Turn{UserID: user, Sender: conversation.SenderUser, Message: msg, Timestamp: ts, Route: route.InsuranceService}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, user, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "three" {
		t.Errorf("Recent = %+v", got)
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, ts)
	}

	if err := s.Replace(ctx, user, conversation.Turn{Sender: conversation.SenderAssistant, Message: "summary", Timestamp: ts}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ = s.Recent(ctx, user, 10)
	if len(got) != 1 || got[0].Message != "summary" {
		t.Errorf("after Replace = %+v", got)
	}

	if err := s.Append(ctx, conversation.Turn{Message: "x"}); !errors.Is(err, conversation.ErrEmptyUserID) {
		t.Errorf("empty user err = %v", err)
	}
}
