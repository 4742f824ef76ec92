// Package session owns the mapping from session identifier to session state.
//
// # Overview
//
// A Session is a persistent conversational context keyed by an identifier.
// The Registry creates sessions lazily on the first message for an unknown
// identifier, hands back the same *Session for every later lookup, and drops
// the mapping when the owning channel says so.
//
//	reg := session.NewRegistry(processor.NewHistoryState, logger)
//	sess, err := reg.GetOrCreate("web:default", session.KindRequest)
//	reg.Remove(sess.ID)
//
// # Identifiers
//
//   - Request/response sessions use the caller's session_id or "web:default".
//   - Stream sessions use "web:ws-<uuid>", minted per connection.
//
// # State
//
// Each session carries an opaque state handle built by the registry's
// StateFunc when the session is created. The registry never looks inside it;
// the message processor owns its shape. Only the dispatcher touches state,
// and only while holding the session's turn lock.
//
// # Expiry
//
// The registry never expires sessions by itself. Sweeper is an optional
// supervisor that removes request/response sessions idle for longer than a
// configured timeout; stream sessions live exactly as long as their
// connection. A session with a turn running or waiting (BeginTurn without a
// matching EndTurn) is never swept.
package session
