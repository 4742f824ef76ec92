// ABOUTME: Session registry mapping session identifiers to live session state
// ABOUTME: Creation is lazy and atomic; removal is idempotent

package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyID is returned when a session identifier is empty.
var ErrEmptyID = errors.New("session id is required")

// Kind records which adapter created a session.
type Kind string

const (
	// KindRequest sessions come from request/response calls and have no
	// explicit end of life.
	KindRequest Kind = "request"
	// KindStream sessions belong to a duplex connection and are removed
	// when it closes.
	KindStream Kind = "stream"
)

// StateFunc builds the opaque processor state for a new session.
type StateFunc func(id string) any

// Session is one conversation. The state handle belongs to this session only.
type Session struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time

	state      any
	lastActive atomic.Int64
	turns      atomic.Int32
}

// State returns the opaque processor state handle.
func (s *Session) State() any {
	return s.state
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// BeginTurn marks a turn as running or waiting on this session. The idle
// sweeper skips sessions with turns in progress. Every BeginTurn must be
// paired with EndTurn.
func (s *Session) BeginTurn() {
	s.turns.Add(1)
	s.Touch()
}

// EndTurn marks a turn begun with BeginTurn as finished.
func (s *Session) EndTurn() {
	s.Touch()
	s.turns.Add(-1)
}

// Busy reports whether a turn is running or waiting on the session.
func (s *Session) Busy() bool {
	return s.turns.Load() > 0
}

// LastActive returns the time of the most recent Touch, or creation time.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Info is a snapshot of a session for status reporting.
type Info struct {
	ID         string
	Kind       Kind
	CreatedAt  time.Time
	LastActive time.Time
}

// Registry holds the live sessions. The lock guards map mutation only and is
// never held for the duration of a turn.
type Registry struct {
	sessions map[string]*Session
	newState StateFunc
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. newState may be nil, in which case
// sessions carry a nil state handle.
func NewRegistry(newState StateFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		newState: newState,
		logger:   logger.With("component", "session-registry"),
	}
}

// GetOrCreate returns the live session for id, creating and inserting it if
// none exists. Concurrent callers for the same id always get the same *Session.
// Looking up an existing session counts as activity.
func (r *Registry) GetOrCreate(id string, kind Kind) (*Session, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		sess.Touch()
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have inserted it between the two locks
	if sess, ok := r.sessions[id]; ok {
		sess.Touch()
		return sess, nil
	}

	now := time.Now()
	sess = &Session{
		ID:        id,
		Kind:      kind,
		CreatedAt: now,
	}
	sess.lastActive.Store(now.UnixNano())
	if r.newState != nil {
		sess.state = r.newState(id)
	}
	r.sessions[id] = sess

	r.logger.Info("session created",
		"session_id", id,
		"kind", kind,
		"total_sessions", len(r.sessions),
	)
	return sess, nil
}

// Get returns the live session for id without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes the mapping for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, exists := r.sessions[id]; exists {
		delete(r.sessions, id)
		r.logger.Info("session removed",
			"session_id", id,
			"kind", sess.Kind,
			"total_sessions", len(r.sessions),
		)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// List returns a snapshot of live sessions ordered by creation time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, Info{
			ID:         sess.ID,
			Kind:       sess.Kind,
			CreatedAt:  sess.CreatedAt,
			LastActive: sess.LastActive(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// removeIdle deletes sessions of the given kind whose last activity is older
// than cutoff and that have no turn in progress. Returns the number removed.
func (r *Registry) removeIdle(kind Kind, cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if sess.Kind != kind || sess.Busy() {
			continue
		}
		if !sess.LastActive().Before(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
		r.logger.Info("session removed",
			"session_id", id,
			"kind", sess.Kind,
			"reason", "idle",
			"idle_for", time.Since(sess.LastActive()).Round(time.Millisecond),
			"total_sessions", len(r.sessions),
		)
	}
	return removed
}
