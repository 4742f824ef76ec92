// ABOUTME: gorilla/websocket implementation of the stream Conn interface
// ABOUTME: Skips binary frames, bounds writes with a deadline, and maps clean closes to io.EOF

package channel

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// MaxFrameBytes is the largest inbound frame accepted.
const MaxFrameBytes = 1 << 20

// WSConn adapts a websocket connection to Conn.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewWSConn wraps ws. A zero writeTimeout uses DefaultWriteTimeout.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ws.SetReadLimit(MaxFrameBytes)
	return &WSConn{ws: ws, writeTimeout: writeTimeout}
}

// ReadText implements Conn.
func (c *WSConn) ReadText() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteJSON implements Conn.
func (c *WSConn) WriteJSON(v any) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Close implements Conn. The close frame is best effort.
func (c *WSConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
