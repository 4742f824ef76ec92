// ABOUTME: Request/response adapter mapping one message to one dispatcher turn
// ABOUTME: Resolves the session id, creates the session on demand, and returns the reply

package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/session"
)

// DefaultSessionID is used when a request names no session.
const DefaultSessionID = "web:default"

// Submitter runs a turn. Implemented by *dispatch.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (*chat.OutboundMessage, error)
}

// HTTPAdapter handles single request/response messages.
type HTTPAdapter struct {
	registry   *session.Registry
	dispatcher Submitter
	logger     *slog.Logger
}

// NewHTTPAdapter creates a request/response adapter.
func NewHTTPAdapter(registry *session.Registry, dispatcher Submitter, logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With("component", "http-channel"),
	}
}

// Handle runs one turn for text. An empty text fails with a validation error
// before any session is touched. The returned message carries the resolved
// session id.
func (a *HTTPAdapter) Handle(ctx context.Context, text, sessionID string) (*chat.OutboundMessage, error) {
	if text == "" {
		return nil, chat.NewValidationError("message required")
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	sess, err := a.registry.GetOrCreate(sessionID, session.KindRequest)
	if err != nil {
		return nil, err
	}

	msg := chat.NewInboundMessage(chat.WebChannel, sess.ID, chat.DefaultSender, text, time.Now())
	return a.dispatcher.Submit(ctx, sess, msg)
}
