// ABOUTME: Tests for gateway construction, health endpoints, websocket sessions, and shutdown
// ABOUTME: Runs the full handler over httptest with the echo processor and a temp SQLite ledger

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nanobot-gateway/internal/channel"
	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/config"
	"github.com/2389/nanobot-gateway/internal/dispatch"
	"github.com/2389/nanobot-gateway/internal/processor"
	"github.com/2389/nanobot-gateway/internal/session"
	"github.com/2389/nanobot-gateway/internal/store"
)

const testSettings = `{
  "providers": {
    "openrouter": {"apiKey": "sk-or-secret"},
    "openai": {"apiKey": ""}
  },
  "agents": {"defaults": {"model": "anthropic/claude-opus-4-5"}},
  "channels": {
    "telegram": {"enabled": true, "token": "123:abc", "allowFrom": ["alice"], "proxy": "socks5://x"},
    "discord": {"enabled": false, "token": "", "allowFrom": []}
  }
}`

// newTestGateway builds a gateway on temp files with the echo processor.
func newTestGateway(t *testing.T, opts ...func(*config.Config)) *Gateway {
	t.Helper()

	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(settingsPath, []byte(testSettings), 0o600))

	cfg := config.Default()
	cfg.Server.HTTPAddr = "localhost:0"
	cfg.Database.Path = filepath.Join(dir, "web.db")
	cfg.Settings.Path = settingsPath
	cfg.Processor.Kind = config.ProcessorEcho
	for _, opt := range opts {
		opt(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func mustSession(t *testing.T, gw *Gateway, id string) *session.Session {
	t.Helper()
	sess, ok := gw.registry.Get(id)
	require.True(t, ok, "session %s not found", id)
	return sess
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]string
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestNewRejectsUnknownProcessor(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "web.db")
	cfg.Settings.Path = filepath.Join(dir, "config.json")
	cfg.Processor.Kind = "markov"

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markov")
}

func TestHealth(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	gw := newTestGateway(t)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready (0 sessions)", rec.Body.String())

	require.NoError(t, os.Remove(gw.settings.Path()))

	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "settings unavailable")
}

func TestReadyFailsWhenLedgerClosed(t *testing.T) {
	gw := newTestGateway(t)
	require.NoError(t, gw.store.Close())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger unavailable")
}

func TestWebSocketSession(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ws := dialWS(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]string{"message": "hello"}))
	assert.Equal(t, map[string]string{"response": processor.EchoPrefix + "hello"}, readFrame(t, ws))

	// Error frames leave the connection open
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, map[string]string{"error": "invalid message frame"}, readFrame(t, ws))

	require.NoError(t, ws.WriteJSON(map[string]string{"message": ""}))
	assert.Equal(t, map[string]string{"error": "message required"}, readFrame(t, ws))

	// Binary frames are ignored
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	require.NoError(t, ws.WriteJSON(map[string]string{"message": "again"}))
	assert.Equal(t, map[string]string{"response": processor.EchoPrefix + "again"}, readFrame(t, ws))

	infos := gw.registry.List()
	require.Len(t, infos, 1)
	assert.True(t, strings.HasPrefix(infos[0].ID, "web:ws-"))
}

func TestWebSocketSessionsAreIsolated(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	a := dialWS(t, srv)
	b := dialWS(t, srv)

	require.NoError(t, a.WriteJSON(map[string]string{"message": "one"}))
	readFrame(t, a)
	require.NoError(t, b.WriteJSON(map[string]string{"message": "two"}))
	readFrame(t, b)

	infos := gw.registry.List()
	require.Len(t, infos, 2)
	assert.NotEqual(t, infos[0].ID, infos[1].ID)

	for _, info := range infos {
		hist := processor.HistoryOf(mustSession(t, gw, info.ID))
		require.NotNil(t, hist)
		assert.Equal(t, 2, hist.Len())
	}
}

func TestWebSocketCloseRemovesSession(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ws := dialWS(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]string{"message": "hi"}))
	readFrame(t, ws)
	require.Equal(t, 1, gw.registry.Count())

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = ws.Close()

	assert.Eventually(t, func() bool { return gw.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesWebSockets(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ws := dialWS(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]string{"message": "hi"}))
	readFrame(t, ws)

	require.NoError(t, gw.Shutdown(context.Background()))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return gw.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}

// heldProcessor blocks every turn until release is closed.
type heldProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (p *heldProcessor) NewProcessor(ctx context.Context) (dispatch.Processor, error) {
	return p, nil
}

func (p *heldProcessor) Process(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (string, error) {
	p.started <- struct{}{}
	<-p.release
	return "late: " + msg.Text(), nil
}

func TestShutdownRecordsInFlightStreamTurns(t *testing.T) {
	gw := newTestGateway(t)
	proc := &heldProcessor{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := dispatch.New(proc, nil, dispatch.WithRecorder(gw.store))
	gw.stream = channel.NewStreamAdapter(gw.registry, d, nil)

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ws := dialWS(t, srv)
	require.NoError(t, ws.WriteJSON(map[string]string{"message": "slow"}))
	<-proc.started

	sessions := gw.registry.List()
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- gw.Shutdown(ctx) }()

	select {
	case err := <-shutdownDone:
		t.Fatalf("Shutdown returned while a turn was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(proc.release)
	require.NoError(t, <-shutdownDone)

	ledger, err := store.NewSQLiteStore(gw.config.Database.Path, nil)
	require.NoError(t, err)
	defer ledger.Close()

	events, err := ledger.ListEvents(context.Background(), sessionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "slow", events[0].Text)
	assert.Equal(t, "late: slow", events[1].Text)
}

func TestWebSocketRefusedAfterShutdown(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	require.NoError(t, gw.Shutdown(context.Background()))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunServesUntilCanceled(t *testing.T) {
	gw := newTestGateway(t, func(cfg *config.Config) {
		cfg.Settings.Watch = true
		cfg.Sessions.IdleTimeout = time.Minute
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gw := newTestGateway(t)

	out, err := gw.httpAdapter.Handle(context.Background(), "ping", "")
	require.NoError(t, err)
	require.Equal(t, processor.EchoPrefix+"ping", out.Text())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `nanobot_turns_total{channel="web",outcome="ok"} 1`)
	assert.Contains(t, body, "nanobot_sessions_live 1")
}

func TestMetricsDisabled(t *testing.T) {
	gw := newTestGateway(t, func(cfg *config.Config) { cfg.Metrics.Enabled = false })

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
