// Package store persists the turn ledger in SQLite.
//
// Every turn the dispatcher completes is written as two TurnEvents: the
// inbound user message and the outbound reply, or the error text when the
// turn failed. Events are keyed by session id and read back in the order
// they were recorded.
//
// SQLiteStore is the production implementation built on modernc.org/sqlite.
// MockStore keeps events in memory for tests of packages that depend on a
// Store.
//
// Recording is best effort from the caller's point of view: the dispatcher
// logs a failed write and still returns the reply.
package store
