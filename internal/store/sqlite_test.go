// ABOUTME: Tests for the SQLite turn ledger
// ABOUTME: Covers schema creation, turn recording, ordering, limits, and deletion

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nanobot-gateway/internal/chat"
)

// Both implementations must satisfy Store.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func okTurn(sessionID, text, reply string) *chat.Turn {
	now := time.Now()
	return &chat.Turn{
		Inbound:    chat.NewInboundMessage(chat.WebChannel, sessionID, chat.DefaultSender, text, now),
		Outbound:   chat.NewOutboundMessage(sessionID, reply),
		StartedAt:  now,
		FinishedAt: now.Add(time.Millisecond),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestRecordTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(ctx, okTurn("web:default", "hi", "echo: hi")))

	events, err := store.ListEvents(ctx, "web:default", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, DirectionInbound, events[0].Direction)
	assert.Equal(t, chat.DefaultSender, events[0].Author)
	assert.Equal(t, "hi", events[0].Text)
	assert.Equal(t, chat.WebChannel, events[0].Channel)

	assert.Equal(t, DirectionOutbound, events[1].Direction)
	assert.Equal(t, ReplyAuthor, events[1].Author)
	assert.Equal(t, "echo: hi", events[1].Text)
	assert.False(t, events[1].IsError)
}

func TestRecordFailedTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	turn := okTurn("s1", "boom", "")
	turn.Outbound = nil
	turn.Err = &chat.ProcessingError{SessionID: "s1", Err: errors.New("provider down")}

	require.NoError(t, store.RecordTurn(ctx, turn))

	events, err := store.ListEvents(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[1].IsError)
	assert.Contains(t, events[1].Text, "provider down")
}

func TestListEventsKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordTurn(ctx, okTurn("s1", fmt.Sprintf("m%d", i), fmt.Sprintf("r%d", i))))
	}
	require.NoError(t, store.RecordTurn(ctx, okTurn("s2", "other", "other")))

	events, err := store.ListEvents(ctx, "s1", 4)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "m3", events[0].Text)
	assert.Equal(t, "r4", events[3].Text)
}

func TestListEventsPreservesTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	turn := &chat.Turn{
		Inbound:    chat.NewInboundMessage(chat.WebChannel, "s1", "u", "x", ts),
		Outbound:   chat.NewOutboundMessage("s1", "y"),
		StartedAt:  ts,
		FinishedAt: ts.Add(time.Second),
	}
	require.NoError(t, store.RecordTurn(ctx, turn))

	events, err := store.ListEvents(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "u", events[0].Author)
	assert.True(t, ts.Equal(events[0].Timestamp))
	assert.True(t, ts.Add(time.Second).Equal(events[1].Timestamp))
}

func TestPingAfterClose(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(ctx, okTurn("s1", "a", "b")))
	require.NoError(t, store.RecordTurn(ctx, okTurn("s2", "c", "d")))

	n, err := store.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := store.ListEvents(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = store.ListEvents(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestMockStoreMatchesSQLite(t *testing.T) {
	ctx := context.Background()
	mock := NewMockStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, mock.RecordTurn(ctx, okTurn("s1", fmt.Sprintf("m%d", i), "r")))
	}

	events, err := mock.ListEvents(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "m2", events[0].Text)

	n, err := mock.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, DefaultListLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxListLimit, ClampLimit(10000))
}
