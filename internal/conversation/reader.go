package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultHistoryLimit = 20
	defaultMaxChars     = 3500
	latestUserTurns     = 2
)

// Compactor condenses an oversized history transcript.
type Compactor interface {
	Compact(ctx context.Context, rawHistory string, maxChars int) (string, error)
}

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	Store     Store
	Compactor Compactor

	// HistoryLimit is the recency window in turns. Defaults to 20.
	HistoryLimit int

	// MaxChars is the character budget of the history transcript, counted
	// in runes. Defaults to 3500.
	MaxChars int

	Logger *slog.Logger
	Now    func() time.Time
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.MaxChars <= 0 {
		c.MaxChars = defaultMaxChars
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Reader derives a user's State from the store.
type Reader struct {
	cfg ReaderConfig
}

// NewReader creates a Reader.
func NewReader(cfg ReaderConfig) *Reader {
	return &Reader{cfg: cfg.withDefaults()}
}

// State reads the recent turns of a user and derives the conversation
// state. When the transcript exceeds the character budget it is compacted
// first, which rewrites the stored history.
func (r *Reader) State(ctx context.Context, userID string) (State, error) {
	turns, err := r.cfg.Store.Recent(ctx, userID, r.cfg.HistoryLimit)
	if err != nil {
		return State{}, fmt.Errorf("conversation: read recent: %w", err)
	}
	if len(turns) == 0 {
		return State{}, nil
	}

	history, _ := r.CompactIfOversized(ctx, userID, turns)

	return State{
		SummarizedHistory: history,
		LatestRoute:       turns[len(turns)-1].Route,
		LatestUserMessage: LatestUserMessages(turns, latestUserTurns),
	}, nil
}

// CompactIfOversized returns the transcript of turns, or a compacted summary
// when the transcript is longer than the character budget. On compaction
// the user's stored history is destroyed and replaced by a single assistant
// turn holding the summary; the original wording is not recoverable. The
// boolean result reports whether the store was rewritten.
//
// A failing compactor leaves the history untouched and the raw transcript
// is returned. A failing store write still returns the summary.
func (r *Reader) CompactIfOversized(ctx context.Context, userID string, turns []Turn) (string, bool) {
	text := FormatHistory(turns)
	if utf8.RuneCountInString(text) <= r.cfg.MaxChars || r.cfg.Compactor == nil {
		return text, false
	}

	summary, err := r.cfg.Compactor.Compact(ctx, text, r.cfg.MaxChars)
	if err != nil {
		r.cfg.Logger.Warn("conversation: compaction failed, using raw history",
			"user", userID, "error", err)
		return text, false
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return text, false
	}

	err = r.cfg.Store.Replace(ctx, userID, Turn{
		UserID:    userID,
		Sender:    SenderAssistant,
		Message:   summary,
		Timestamp: r.cfg.Now(),
		Route:     turns[len(turns)-1].Route,
	})
	if err != nil {
		r.cfg.Logger.Warn("conversation: storing compacted history failed",
			"user", userID, "error", err)
		return summary, false
	}

	r.cfg.Logger.Info("conversation: history compacted",
		"user", userID,
		"turns", len(turns),
		"raw_chars", utf8.RuneCountInString(text),
		"summary_chars", utf8.RuneCountInString(summary),
	)
	return summary, true
}

// FormatHistory renders turns as "sender: message" lines in order.
func FormatHistory(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Sender))
		b.WriteString(": ")
		b.WriteString(t.Message)
	}
	return b.String()
}

// LatestUserMessages joins the last n user messages with newlines.
func LatestUserMessages(turns []Turn, n int) string {
	var msgs []string
	for i := len(turns) - 1; i >= 0 && len(msgs) < n; i-- {
		if turns[i].Sender == SenderUser {
			msgs = append(msgs, turns[i].Message)
		}
	}
	slices.Reverse(msgs)
	return strings.Join(msgs, "\n")
}
