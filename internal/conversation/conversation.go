// Package conversation provides the per-user conversation log, the state
// derived from it, and an in-memory store implementation.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/seline/internal/route"
)

// ErrEmptyUserID is returned by stores when a turn has no user identifier.
var ErrEmptyUserID = errors.New("conversation: empty user id")

// Sender identifies who produced a turn.
type Sender string

// Senders.
const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Turn is an immutable record appended to the conversation log.
type Turn struct {
	UserID    string
	Sender    Sender
	Message   string
	Timestamp time.Time
	Route     route.Route
}

// State is derived from the most recent turns of a user.
type State struct {
	// SummarizedHistory is the "sender: message" transcript, or its compacted
	// summary when the transcript exceeded the character budget.
	SummarizedHistory string

	// LatestRoute is the route of the most recent turn, route.None when the
	// user has no history.
	LatestRoute route.Route

	// LatestUserMessage holds up to the last two user messages, newline
	// separated.
	LatestUserMessage string
}

// Empty reports whether the state carries no history at all.
func (s State) Empty() bool {
	return s.SummarizedHistory == "" && s.LatestRoute == route.None && s.LatestUserMessage == ""
}

// Store is a durable append-only per-user conversation log.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a turn to the user's log.
	Append(ctx context.Context, turn Turn) error

	// Recent returns the n most recent turns in chronological order.
	// If fewer than n turns exist, all are returned.
	Recent(ctx context.Context, userID string, n int) ([]Turn, error)

	// Clear removes every turn of the user.
	Clear(ctx context.Context, userID string) error

	// Replace atomically removes every turn of the user and stores turn as
	// the only remaining entry.
	Replace(ctx context.Context, userID string, turn Turn) error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
