// Package dispatch drives one inbound message at a time through the message
// processor for each session.
//
// # Serialization
//
// Submit holds a per-session lane for the whole turn. A second Submit for the
// same session waits until the first has produced its result, success or
// error, before its processor is created. Waiters are admitted in arrival
// order. Submits for different sessions never wait on each other.
//
// Lanes are created on first use and dropped as soon as no turn holds or
// waits on them, so the dispatcher keeps no long-term state.
//
// # Processors
//
// A Factory builds a fresh Processor for every turn. Conversation memory is
// not kept in the processor; it lives in the session's state handle, which
// the processor reads and updates while the lane is held.
//
// # Failures
//
// Anything the processor returns or panics with is wrapped in a
// *chat.ProcessingError. The session stays registered and usable.
package dispatch
