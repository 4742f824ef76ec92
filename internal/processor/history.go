// ABOUTME: Per-session conversation history kept in the session state handle
// ABOUTME: Bounded to a fixed number of messages; oldest entries are dropped first

package processor

import (
	"sync"

	"github.com/2389/nanobot-gateway/internal/session"
)

// DefaultHistoryLimit bounds a session's history when no limit is configured.
const DefaultHistoryLimit = 50

// Message roles stored in History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation.
type Message struct {
	Role    string
	Content string
}

// History is a bounded conversation log. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	limit int
	msgs  []Message
}

// NewHistory creates a history holding at most limit messages.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append adds messages, dropping the oldest beyond the limit.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.msgs = append(h.msgs, msgs...)
	if over := len(h.msgs) - h.limit; over > 0 {
		h.msgs = append([]Message(nil), h.msgs[over:]...)
	}
}

// Messages returns a copy of the stored messages, oldest first.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.msgs...)
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// HistoryState returns a session.StateFunc that gives every session its own History.
func HistoryState(limit int) session.StateFunc {
	return func(string) any {
		return NewHistory(limit)
	}
}

// HistoryOf returns the session's History, or nil if its state is something else.
func HistoryOf(sess *session.Session) *History {
	h, _ := sess.State().(*History)
	return h
}
