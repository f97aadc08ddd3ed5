package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/route"
)

const insertTurn = `
	INSERT INTO turns (user_id, seq, sender, message, timestamp, route)
	VALUES (?, COALESCE((SELECT MAX(seq) FROM turns WHERE user_id = ?), 0) + 1, ?, ?, ?, ?)`

// Append adds a turn to the user's log.
func (s *Store) Append(ctx context.Context, turn conversation.Turn) error {
	if turn.UserID == "" {
		return conversation.ErrEmptyUserID
	}
	_, err := s.db.ExecContext(ctx, insertTurn,
		turn.UserID, turn.UserID,
		string(turn.Sender), turn.Message, turn.Timestamp.Format(time.RFC3339Nano), string(turn.Route),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append turn: %w", err)
	}
	return nil
}

// Recent returns the n most recent turns in chronological order.
func (s *Store) Recent(ctx context.Context, userID string, n int) ([]conversation.Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, message, timestamp, route
		FROM turns
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []conversation.Turn
	for rows.Next() {
		var sender, ts, rt string
		turn := conversation.Turn{UserID: userID}
		if err := rows.Scan(&sender, &turn.Message, &ts, &rt); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		if turn.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("sqlite: parse timestamp %q: %w", ts, err)
		}
		turn.Sender = conversation.Sender(sender)
		turn.Route = route.Route(rt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent turns rows: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

// Clear removes every turn of the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("sqlite: clear turns: %w", err)
	}
	return nil
}

// Replace atomically swaps the user's log for a single turn.
func (s *Store) Replace(ctx context.Context, userID string, turn conversation.Turn) error {
	if userID == "" {
		return conversation.ErrEmptyUserID
	}
	turn.UserID = userID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("sqlite: replace delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertTurn,
		userID, userID,
		string(turn.Sender), turn.Message, turn.Timestamp.Format(time.RFC3339Nano), string(turn.Route),
	); err != nil {
		return fmt.Errorf("sqlite: replace insert: %w", err)
	}
	return tx.Commit()
}

// Len returns the number of turns stored for a user.
func (s *Store) Len(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count turns: %w", err)
	}
	return n, nil
}
