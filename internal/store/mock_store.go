// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/nanobot-gateway/internal/chat"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events []*TurnEvent // in recorded order

	// RecordErr, when set, is returned by RecordTurn.
	RecordErr error
	// PingErr, when set, is returned by Ping.
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// RecordTurn stores the turn's events.
func (m *MockStore) RecordTurn(ctx context.Context, turn *chat.Turn) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, TurnEvents(turn, uuid.NewString)...)
	return nil
}

// ListEvents returns the last limit events of a session, oldest first.
func (m *MockStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]*TurnEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*TurnEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			c := *e
			matched = append(matched, &c)
		}
	}
	if limit = ClampLimit(limit); len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// DeleteSession drops every event of a session.
func (m *MockStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var n int64
	for _, e := range m.events {
		if e.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return n, nil
}

// Close is a no-op.
// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockStore) Close() error { return nil }
