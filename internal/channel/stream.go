// ABOUTME: Duplex adapter serving one streaming connection as one session
// ABOUTME: Reader queues frames in order; a single worker submits them and writes replies

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/session"
)

// StreamSessionPrefix starts every duplex session id.
const StreamSessionPrefix = "web:ws-"

// MaxPendingFrames bounds the frames queued behind a running turn. A client
// that exceeds it is disconnected.
const MaxPendingFrames = 64

// ErrTooManyFrames is the backpressure failure for a client that overruns
// the queue. It closes the connection like a transport error but is logged
// separately.
var ErrTooManyFrames = errors.New("backpressure: too many frames pending behind a running turn")

// Conn is one duplex connection.
type Conn interface {
	// ReadText blocks until the next text frame arrives. Non-text frames are skipped.
	ReadText() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// StreamObserver is told when connections open and close.
type StreamObserver interface {
	StreamOpened()
	StreamClosed()
}

// InboundFrame is the client-to-server payload.
type InboundFrame struct {
	Message string `json:"message"`
}

// ReplyFrame carries a successful reply.
type ReplyFrame struct {
	Response string `json:"response"`
}

// ErrorFrame carries a per-message failure.
type ErrorFrame struct {
	Error string `json:"error"`
}

// StreamAdapter serves duplex connections.
type StreamAdapter struct {
	registry   *session.Registry
	dispatcher Submitter
	logger     *slog.Logger

	frameRate  rate.Limit
	frameBurst int
	observer   StreamObserver
}

// StreamOption configures a StreamAdapter.
type StreamOption func(*StreamAdapter)

// WithFrameRate paces inbound frames per connection. Excess frames wait;
// none are dropped. A zero rate disables pacing.
func WithFrameRate(perSecond float64, burst int) StreamOption {
	return func(a *StreamAdapter) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.frameRate = rate.Limit(perSecond)
		a.frameBurst = burst
	}
}

// WithStreamObserver reports connection opens and closes.
func WithStreamObserver(o StreamObserver) StreamOption {
	return func(a *StreamAdapter) { a.observer = o }
}

// NewStreamAdapter creates a duplex adapter.
func NewStreamAdapter(registry *session.Registry, dispatcher Submitter, logger *slog.Logger, opts ...StreamOption) *StreamAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &StreamAdapter{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With("component", "stream-channel"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serve runs conn until it closes. The connection's session is removed from
// the registry as soon as the transport closes; Serve itself returns once any
// in-flight turn has finished. A clean close (io.EOF from ReadText) returns
// nil; any other cause comes back as a *chat.TransportError.
func (a *StreamAdapter) Serve(ctx context.Context, conn Conn) error {
	id := StreamSessionPrefix + uuid.NewString()
	sess, err := a.registry.GetOrCreate(id, session.KindStream)
	if err != nil {
		_ = conn.Close()
		return err
	}

	if a.observer != nil {
		a.observer.StreamOpened()
		defer a.observer.StreamClosed()
	}

	c := &streamConn{
		adapter: a,
		conn:    conn,
		sess:    sess,
		queue:   make(chan []byte, MaxPendingFrames),
		closed:  make(chan struct{}),
		logger:  a.logger.With("session_id", id),
	}
	c.waitCtx, c.cancelWait = context.WithCancel(ctx)
	defer c.cancelWait()

	// Server shutdown closes the transport like a client disconnect would
	stop := context.AfterFunc(ctx, func() { c.shutdown(context.Cause(ctx)) })
	defer stop()

	if a.frameRate > 0 {
		c.limiter = rate.NewLimiter(a.frameRate, a.frameBurst)
	}

	c.logger.Info("stream connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.work(ctx)
	}()

	readErr := c.read()
	wg.Wait()

	c.logger.Info("stream disconnected")
	if errors.Is(readErr, io.EOF) {
		return nil
	}
	return readErr
}

// streamConn is the per-connection state.
type streamConn struct {
	adapter *StreamAdapter
	conn    Conn
	sess    *session.Session
	limiter *rate.Limiter
	logger  *slog.Logger

	queue     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	// waitCtx ends when the connection closes; used for frame pacing only
	waitCtx    context.Context
	cancelWait context.CancelFunc
}

// read pulls frames until the transport fails, then closes the connection.
func (c *streamConn) read() error {
	defer close(c.queue)

	for {
		data, err := c.conn.ReadText()
		if err != nil {
			c.shutdown(err)
			return c.closeErr
		}

		select {
		case <-c.closed:
			return c.closeErr
		default:
		}

		select {
		case c.queue <- data:
		default:
			c.logger.Warn("closing stream on backpressure", "pending_frames", len(c.queue))
			c.shutdown(ErrTooManyFrames)
			return c.closeErr
		}
	}
}

// shutdown enters the closing state: the session leaves the registry and
// queued frames are abandoned. Safe to call from both goroutines.
func (c *streamConn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = &chat.TransportError{SessionID: c.sess.ID, Err: cause}
		close(c.closed)
		c.cancelWait()
		c.adapter.registry.Remove(c.sess.ID)
		_ = c.conn.Close()
		c.logger.Debug("stream closing", "cause", cause)
	})
}

func (c *streamConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// work handles queued frames one at a time in arrival order.
func (c *streamConn) work(ctx context.Context) {
	for data := range c.queue {
		if c.isClosed() {
			continue
		}
		c.handle(ctx, data)
	}
}

func (c *streamConn) handle(ctx context.Context, data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.write(ErrorFrame{Error: "invalid message frame"})
		return
	}
	if frame.Message == "" {
		c.write(ErrorFrame{Error: "message required"})
		return
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(c.waitCtx); err != nil {
			return
		}
	}

	msg := chat.NewInboundMessage(chat.WebChannel, c.sess.ID, chat.DefaultSender, frame.Message, time.Now())

	// The turn outlives the connection; only its reply is dropped.
	out, err := c.adapter.dispatcher.Submit(context.WithoutCancel(ctx), c.sess, msg)

	if c.isClosed() {
		c.logger.Debug("discarding reply for closed stream")
		return
	}
	if err != nil {
		c.write(ErrorFrame{Error: err.Error()})
		return
	}
	c.write(ReplyFrame{Response: out.Text()})
}

func (c *streamConn) write(v any) {
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Warn("stream write failed", "error", err)
		c.shutdown(err)
	}
}
