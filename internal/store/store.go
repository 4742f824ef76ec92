// ABOUTME: Store interface and turn ledger types for nanobot-gateway persistence
// ABOUTME: Defines TurnEvent and the operations shared by SQLite and mock stores

package store

import (
	"context"
	"time"

	"github.com/2389/nanobot-gateway/internal/chat"
)

// Direction tells whether an event came from the user or from the processor
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ReplyAuthor is the author recorded on outbound events
const ReplyAuthor = "nanobot"

// Limits for ListEvents
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// TurnEvent is one side of a recorded turn
type TurnEvent struct {
	ID        string
	SessionID string
	Channel   string
	Direction Direction
	Author    string
	Text      string
	IsError   bool
	Timestamp time.Time
}

// Store is the turn ledger
type Store interface {
	// RecordTurn saves the inbound and outbound events of a finished turn
	RecordTurn(ctx context.Context, turn *chat.Turn) error
	// ListEvents returns the most recent events of a session, oldest first
	ListEvents(ctx context.Context, sessionID string, limit int) ([]*TurnEvent, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
	// Ping checks that the ledger is reachable
	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit applies the default and maximum to a caller-supplied limit
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// TurnEvents splits a finished turn into its ledger events. ids supplies
// the event ids, inbound first.
func TurnEvents(turn *chat.Turn, ids func() string) []*TurnEvent {
	in := turn.Inbound
	events := []*TurnEvent{{
		ID:        ids(),
		SessionID: in.SessionID(),
		Channel:   in.Channel(),
		Direction: DirectionInbound,
		Author:    in.SenderID(),
		Text:      in.Text(),
		Timestamp: in.Timestamp(),
	}}

	out := &TurnEvent{
		ID:        ids(),
		SessionID: in.SessionID(),
		Channel:   in.Channel(),
		Direction: DirectionOutbound,
		Author:    ReplyAuthor,
		Timestamp: turn.FinishedAt,
	}
	switch {
	case turn.Err != nil:
		out.Text = turn.Err.Error()
		out.IsError = true
	case turn.Outbound != nil:
		out.Text = turn.Outbound.Text()
	default:
		return events
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	return append(events, out)
}
