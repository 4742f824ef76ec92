// ABOUTME: Turn dispatcher that serializes turns per session and invokes the processor
// ABOUTME: Different sessions run in parallel; one session never runs two turns at once

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/session"
)

// Processor turns a session and an inbound message into reply text.
type Processor interface {
	Process(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (string, error)
}

// Factory creates a Processor for a single turn.
type Factory interface {
	NewProcessor(ctx context.Context) (Processor, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Processor, error)

func (f FactoryFunc) NewProcessor(ctx context.Context) (Processor, error) { return f(ctx) }

// Recorder persists finished turns. Recording failures never fail the turn.
type Recorder interface {
	RecordTurn(ctx context.Context, turn *chat.Turn) error
}

// Observer receives timing for each turn.
type Observer interface {
	TurnWaited(channel string, wait time.Duration)
	TurnFinished(channel, outcome string, elapsed time.Duration)
}

// Turn outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// lane serializes the turns of one session. sem has capacity one; blocked
// senders are admitted in FIFO order.
type lane struct {
	sem  chan struct{}
	refs int
}

// Dispatcher runs turns against the message processor.
type Dispatcher struct {
	factory  Factory
	recorder Recorder
	observer Observer
	logger   *slog.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder persists every finished turn.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithObserver reports turn timings.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a Dispatcher using factory to build processors.
func New(factory Factory, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		factory: factory,
		logger:  logger.With("component", "dispatcher"),
		lanes:   make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit runs one turn for sess. If another turn for the same session is in
// flight, Submit waits for it to finish first. Processor failures come back as
// *chat.ProcessingError; a canceled ctx while waiting returns ctx.Err() wrapped.
func (d *Dispatcher) Submit(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (*chat.OutboundMessage, error) {
	// Covers the wait for the lane too, so a queued turn is never swept
	sess.BeginTurn()
	defer sess.EndTurn()

	l := d.acquire(sess.ID)
	defer d.release(sess.ID, l)

	waitStart := time.Now()
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		d.observeFinished(msg.Channel(), OutcomeCanceled, time.Since(waitStart))
		return nil, fmt.Errorf("waiting for session %s: %w", sess.ID, ctx.Err())
	}
	defer func() { <-l.sem }()

	if d.observer != nil {
		d.observer.TurnWaited(msg.Channel(), time.Since(waitStart))
	}

	turn := &chat.Turn{Inbound: msg, StartedAt: time.Now()}

	reply, err := d.run(ctx, sess, msg)

	turn.FinishedAt = time.Now()

	if err != nil {
		turn.Err = &chat.ProcessingError{SessionID: sess.ID, Err: err}
		d.logger.Warn("turn failed",
			"session_id", sess.ID,
			"channel", msg.Channel(),
			"error", err,
		)
		d.record(ctx, turn)
		d.observeFinished(msg.Channel(), OutcomeError, turn.FinishedAt.Sub(turn.StartedAt))
		return nil, turn.Err
	}

	turn.Outbound = chat.NewOutboundMessage(sess.ID, reply)
	d.logger.Debug("turn completed",
		"session_id", sess.ID,
		"channel", msg.Channel(),
		"duration", turn.FinishedAt.Sub(turn.StartedAt),
	)
	d.record(ctx, turn)
	d.observeFinished(msg.Channel(), OutcomeOK, turn.FinishedAt.Sub(turn.StartedAt))
	return turn.Outbound, nil
}

// activeLanes returns the number of sessions with a turn running or waiting.
func (d *Dispatcher) activeLanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// run builds a processor for this turn and invokes it, converting panics to errors.
func (d *Dispatcher) run(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("processor panic recovered", "session_id", sess.ID, "panic", r)
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	proc, err := d.factory.NewProcessor(ctx)
	if err != nil {
		return "", fmt.Errorf("creating processor: %w", err)
	}
	return proc.Process(ctx, sess, msg)
}

func (d *Dispatcher) acquire(id string) *lane {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lanes[id]
	if !ok {
		l = &lane{sem: make(chan struct{}, 1)}
		d.lanes[id] = l
	}
	l.refs++
	return l
}

func (d *Dispatcher) release(id string, l *lane) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(d.lanes, id)
	}
}

// record stores the turn. The caller's cancellation must not lose the record.
func (d *Dispatcher) record(ctx context.Context, turn *chat.Turn) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordTurn(context.WithoutCancel(ctx), turn); err != nil {
		d.logger.Warn("failed to record turn",
			"session_id", turn.Inbound.SessionID(),
			"error", err,
		)
	}
}

func (d *Dispatcher) observeFinished(channel, outcome string, elapsed time.Duration) {
	if d.observer != nil {
		d.observer.TurnFinished(channel, outcome, elapsed)
	}
}
