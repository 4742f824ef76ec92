// ABOUTME: Message types shared by the channel adapters, dispatcher, and processors
// ABOUTME: InboundMessage and OutboundMessage are immutable once constructed

package chat

import "time"

// WebChannel is the channel name used for messages arriving over the web gateway.
const WebChannel = "web"

// DefaultSender is the sender recorded for web users, who are not authenticated.
const DefaultSender = "web-user"

// InboundMessage is one message received from a channel, addressed to a session.
type InboundMessage struct {
	channel   string
	sessionID string
	senderID  string
	text      string
	timestamp time.Time
}

// NewInboundMessage builds an InboundMessage. A zero timestamp is replaced
// with the current server time.
func NewInboundMessage(channel, sessionID, senderID, text string, ts time.Time) *InboundMessage {
	if ts.IsZero() {
		ts = time.Now()
	}
	return &InboundMessage{
		channel:   channel,
		sessionID: sessionID,
		senderID:  senderID,
		text:      text,
		timestamp: ts,
	}
}

func (m *InboundMessage) Channel() string      { return m.channel }
func (m *InboundMessage) SessionID() string    { return m.sessionID }
func (m *InboundMessage) SenderID() string     { return m.senderID }
func (m *InboundMessage) Text() string         { return m.text }
func (m *InboundMessage) Timestamp() time.Time { return m.timestamp }

// OutboundMessage is the reply produced by one turn.
type OutboundMessage struct {
	text      string
	sessionID string
}

// NewOutboundMessage builds the reply for the given session.
func NewOutboundMessage(sessionID, text string) *OutboundMessage {
	return &OutboundMessage{text: text, sessionID: sessionID}
}

func (m *OutboundMessage) Text() string      { return m.text }
func (m *OutboundMessage) SessionID() string { return m.sessionID }

// Turn binds one inbound message to the reply (or error) it produced.
type Turn struct {
	Inbound    *InboundMessage
	Outbound   *OutboundMessage
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}
