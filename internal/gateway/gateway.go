// ABOUTME: Gateway orchestrator that wires sessions, dispatcher, adapters, and HTTP server
// ABOUTME: Manages listeners, background workers, health endpoints, and shutdown order

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/nanobot-gateway/internal/channel"
	"github.com/2389/nanobot-gateway/internal/config"
	"github.com/2389/nanobot-gateway/internal/dispatch"
	"github.com/2389/nanobot-gateway/internal/metrics"
	"github.com/2389/nanobot-gateway/internal/processor"
	"github.com/2389/nanobot-gateway/internal/session"
	"github.com/2389/nanobot-gateway/internal/settings"
	"github.com/2389/nanobot-gateway/internal/store"
)

// Gateway owns every server component and their lifecycle.
type Gateway struct {
	config      *config.Config
	registry    *session.Registry
	dispatcher  *dispatch.Dispatcher
	settings    *settings.Store
	store       store.Store
	httpAdapter *channel.HTTPAdapter
	stream      *channel.StreamAdapter
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	// watcher and sweeper are nil unless enabled in config
	watcher *settings.Watcher
	sweeper *session.Sweeper

	// streamCtx outlives individual requests; canceling it closes every
	// duplex connection
	streamCtx   context.Context
	stopStreams context.CancelFunc

	// streams counts running /ws handlers so Shutdown can let their
	// in-flight turns reach the ledger before it closes
	streams       sync.WaitGroup
	streamsMu     sync.Mutex
	streamsClosed bool

	// nodeVersion probes the Node.js runtime for the WhatsApp bridge.
	// Replaced in tests.
	nodeVersion func(ctx context.Context) (string, error)
}

// initStore opens the turn ledger at the configured path.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("NANOBOT_WEB_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newFactory builds the processor factory selected by processor.kind.
func newFactory(cfg *config.Config, st *settings.Store, logger *slog.Logger) (dispatch.Factory, error) {
	switch cfg.Processor.Kind {
	case config.ProcessorEcho:
		return processor.EchoFactory{}, nil
	case config.ProcessorOpenAI:
		return processor.NewOpenAIFactory(st, cfg.Processor.Provider, cfg.Processor.SystemPrompt, logger), nil
	default:
		return nil, fmt.Errorf("unknown processor kind %q", cfg.Processor.Kind)
	}
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	settingsStore := settings.NewStore(cfg.Settings.Path, logger, settings.WithCache(cfg.Settings.Watch))

	factory, err := newFactory(cfg, settingsStore, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	registry := session.NewRegistry(processor.HistoryState(cfg.Processor.HistoryLimit), logger)

	dispatchOpts := []dispatch.Option{dispatch.WithRecorder(s)}
	streamOpts := []channel.StreamOption{
		channel.WithFrameRate(cfg.Stream.FrameRate, cfg.Stream.FrameBurst),
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(registry.Count)
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(m))
		streamOpts = append(streamOpts, channel.WithStreamObserver(m))
	}

	dispatcher := dispatch.New(factory, logger, dispatchOpts...)

	streamCtx, stopStreams := context.WithCancel(context.Background())
	gw := &Gateway{
		config:      cfg,
		registry:    registry,
		dispatcher:  dispatcher,
		settings:    settingsStore,
		store:       s,
		httpAdapter: channel.NewHTTPAdapter(registry, dispatcher, logger),
		stream:      channel.NewStreamAdapter(registry, dispatcher, logger, streamOpts...),
		metrics:     m,
		logger:      logger.With("component", "gateway"),
		streamCtx:   streamCtx,
		stopStreams: stopStreams,
		nodeVersion: probeNodeVersion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	if cfg.Settings.Watch {
		w, err := settings.NewWatcher(settingsStore, logger)
		if err != nil {
			stopStreams()
			_ = s.Close()
			return nil, fmt.Errorf("watching settings: %w", err)
		}
		gw.watcher = w
	}

	if cfg.Sessions.IdleTimeout > 0 {
		gw.sweeper = session.NewSweeper(registry, cfg.Sessions.IdleTimeout, cfg.Sessions.SweepInterval, logger)
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// registerRoutes mounts the UI, API, health, and metrics endpoints.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.HandleFunc("GET /{$}", g.handleIndex)
	mux.HandleFunc("GET /settings", g.handleSettingsPage)
	mux.Handle("GET /static/", g.staticHandler())

	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("GET /ws", g.handleWebSocket)

	mux.HandleFunc("GET /api/status", g.handleStatus)
	mux.HandleFunc("GET /api/config", g.handleGetConfig)
	mux.HandleFunc("POST /api/config", g.handleUpdateConfig)
	mux.HandleFunc("GET /api/settings", g.handleGetSettings)
	mux.HandleFunc("POST /api/settings/{channel}", g.handleSaveChannel)
	mux.HandleFunc("GET /api/test/{channel}", g.handleTestChannel)
	mux.HandleFunc("GET /api/whatsapp/qr", g.handleWhatsAppQR)

	mux.HandleFunc("POST /api/gateway/start", g.handleGatewayStart)
	mux.HandleFunc("POST /api/gateway/stop", g.handleGatewayStop)
	mux.HandleFunc("GET /api/gateway/status", g.handleGatewayStatus)

	mux.HandleFunc("GET /api/sessions", g.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", g.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", g.handleSessionHistory)

	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
		g.logger.Info("metrics enabled", "path", g.config.Metrics.Path)
	}
}

// setupTCPListener creates the standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning the error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// startWorkers launches the optional settings watcher and idle sweeper.
func (g *Gateway) startWorkers(ctx context.Context) {
	if g.watcher != nil {
		go g.watcher.Run(ctx)
	}
	if g.sweeper != nil {
		g.sweeper.Start(ctx)
	}
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	g.startWorkers(ctx)
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout,
// since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "nanobot-web", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens for HTTP on :80.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, closes every duplex connection and waits
// for their turns to finish, stops the background workers, and releases the
// ledger.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.registry.Count())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked websocket connections are not tracked by http.Server
	g.closeStreams()
	errs = appendCloseError(errs, "stream drain", g.waitForStreams(ctx))

	if g.sweeper != nil {
		g.sweeper.Stop()
	}
	if g.watcher != nil {
		errs = appendCloseError(errs, "settings watcher close", g.watcher.Close())
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// trackStream registers a /ws handler. It returns false once shutdown has begun.
func (g *Gateway) trackStream() bool {
	g.streamsMu.Lock()
	defer g.streamsMu.Unlock()

	if g.streamsClosed {
		return false
	}
	g.streams.Add(1)
	return true
}

// closeStreams refuses new duplex connections and closes the open ones.
func (g *Gateway) closeStreams() {
	g.streamsMu.Lock()
	g.streamsClosed = true
	g.streamsMu.Unlock()

	g.stopStreams()
}

// waitForStreams blocks until every /ws handler has returned, which includes
// recording any turn still running on it, or until ctx ends.
func (g *Gateway) waitForStreams(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.logger.Warn("duplex turns still running at shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the settings document can be read and the
// ledger answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.settings.Read(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "settings unavailable: %v", err)
		return
	}
	if err := g.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "ledger unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.registry.Count())
}
