// Package postgres implements conversation.Store on PostgreSQL through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/route"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

var (
	_ conversation.Store  = (*Store)(nil)
	_ conversation.Pinger = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id         BIGSERIAL   PRIMARY KEY,
	user_id    TEXT        NOT NULL,
	sender     TEXT        NOT NULL,
	message    TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	route      TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS conversation_turns_user_idx ON conversation_turns (user_id, id);
`

const insertTurn = `INSERT INTO conversation_turns (user_id, sender, message, created_at, route) VALUES ($1, $2, $3, $4, $5)`

// Store is a PostgreSQL-backed conversation log. Turn order follows the
// BIGSERIAL id, so concurrent writers never collide on a sequence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects, verifies the connection and creates the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	logger.Info("postgres: store opened")
	return &Store{db: db, logger: logger}, nil
}

// Append adds a turn to the user's log.
func (s *Store) Append(ctx context.Context, turn conversation.Turn) error {
	if turn.UserID == "" {
		return conversation.ErrEmptyUserID
	}
	_, err := s.db.ExecContext(ctx, insertTurn,
		turn.UserID, string(turn.Sender), turn.Message, turn.Timestamp, string(turn.Route))
	if err != nil {
		return fmt.Errorf("postgres: append turn: %w", err)
	}
	return nil
}

// Recent returns the n most recent turns in chronological order.
func (s *Store) Recent(ctx context.Context, userID string, n int) ([]conversation.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, message, created_at, route
		FROM conversation_turns
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []conversation.Turn
	for rows.Next() {
		var sender, rt string
		turn := conversation.Turn{UserID: userID}
		if err := rows.Scan(&sender, &turn.Message, &turn.Timestamp, &rt); err != nil {
			return nil, fmt.Errorf("postgres: scan turn: %w", err)
		}
		turn.Sender = conversation.Sender(sender)
		turn.Route = route.Route(rt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent turns rows: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

// Clear removes every turn of the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("postgres: clear turns: %w", err)
	}
	return nil
}

// Replace atomically swaps the user's log for a single turn.
func (s *Store) Replace(ctx context.Context, userID string, turn conversation.Turn) error {
	if userID == "" {
		return conversation.ErrEmptyUserID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_turns WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("postgres: replace delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertTurn,
		userID, string(turn.Sender), turn.Message, turn.Timestamp, string(turn.Route)); err != nil {
		return fmt.Errorf("postgres: replace insert: %w", err)
	}
	return tx.Commit()
}

// Ping implements conversation.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.logger.Info("postgres: store closing")
	return s.db.Close()
}
