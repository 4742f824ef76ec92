// ABOUTME: Optional idle-timeout sweeper for request/response sessions
// ABOUTME: Runs on a ticker until stopped; stream sessions are never swept

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes request/response sessions that have been idle
// for longer than the timeout.
type Sweeper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper. A zero or negative interval uses DefaultSweepInterval.
func NewSweeper(registry *Registry, timeout, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		logger:   logger.With("component", "session-sweeper"),
	}
}

// Sweep removes idle request/response sessions once and returns how many went.
func (s *Sweeper) Sweep() int {
	return s.registry.removeIdle(KindRequest, time.Now().Add(-s.timeout))
}

// Start begins periodic sweeping. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(sweepCtx, s.done)
}

// Stop halts sweeping and waits for the loop to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("idle sweeper started", "timeout", s.timeout, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idle sweeper stopped")
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Info("swept idle sessions",
					"removed", removed,
					"total_sessions", s.registry.Count(),
				)
			}
		}
	}
}
