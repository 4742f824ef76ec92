// ABOUTME: Turn ledger reads and writes on the SQLite store
// ABOUTME: RecordTurn writes both sides of a turn in one transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/nanobot-gateway/internal/chat"
)

const eventColumns = `event_id, session_id, channel, direction, author, text, is_error, timestamp`

// RecordTurn saves both events of a turn atomically
func (s *SQLiteStore) RecordTurn(ctx context.Context, turn *chat.Turn) error {
	events := TurnEvents(turn, uuid.NewString)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug("recorded turn",
		"session_id", turn.Inbound.SessionID(),
		"events", len(events),
		"is_error", turn.Err != nil,
	)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, event *TurnEvent) error {
	query := `INSERT INTO turn_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.Channel,
		string(event.Direction),
		event.Author,
		event.Text,
		event.IsError,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEvents returns the last limit events for a session in recorded order
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]*TurnEvent, error) {
	query := `
		SELECT ` + eventColumns + ` FROM (
			SELECT seq, ` + eventColumns + ` FROM turn_events
			WHERE session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*TurnEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// DeleteSession removes every event of a session and returns how many were deleted
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turn_events WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted events: %w", err)
	}
	s.logger.Debug("deleted session events", "session_id", sessionID, "count", n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*TurnEvent, error) {
	var (
		event     TurnEvent
		direction string
		ts        string
	)
	if err := row.Scan(
		&event.ID,
		&event.SessionID,
		&event.Channel,
		&direction,
		&event.Author,
		&event.Text,
		&event.IsError,
		&ts,
	); err != nil {
		return nil, err
	}
	event.Direction = Direction(direction)

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	event.Timestamp = parsed
	return &event, nil
}
