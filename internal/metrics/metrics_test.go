// ABOUTME: Tests for the Prometheus collectors and exposition handler
// ABOUTME: Reads values back with client_golang's testutil helpers

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnCounters(t *testing.T) {
	m := New(nil)

	m.TurnFinished("web", "ok", 20*time.Millisecond)
	m.TurnFinished("web", "ok", 30*time.Millisecond)
	m.TurnFinished("web", "error", time.Millisecond)
	m.TurnWaited("web", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("web", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("web", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.turnWait))
}

func TestStreamGauge(t *testing.T) {
	m := New(nil)

	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamConnections))
}

func TestHandlerExposesSessions(t *testing.T) {
	live := 3
	m := New(func() int { return live })
	m.TurnFinished("web", "ok", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nanobot_sessions_live 3")
	assert.Contains(t, string(body), `nanobot_turns_total{channel="web",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
