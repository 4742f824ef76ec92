// ABOUTME: Package channel adapts transports to the session registry and turn dispatcher
// ABOUTME: Provides the request/response adapter and the duplex stream adapter

// Package channel turns transport input into dispatcher turns.
//
// HTTPAdapter handles one message per call. Its sessions are keyed by the
// caller's session id, or DefaultSessionID, and live until process exit or an
// explicit registry removal.
//
// StreamAdapter serves one duplex connection. Each connection gets a fresh
// session id, and the session is removed from the registry the moment the
// connection closes, even when a turn for it is still running. That turn is
// allowed to finish and its reply is dropped.
//
// Inside one connection, frames are handled strictly in arrival order: a
// single reader queues frames and a single worker submits them one at a time.
// A failed turn produces an error frame and the connection stays open; only
// transport failures end it.
package channel
