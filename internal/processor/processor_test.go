// ABOUTME: Tests for history bounds, the echo processor, and the OpenAI processor
// ABOUTME: The OpenAI path runs against an httptest server speaking the chat completions API

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/session"
	"github.com/2389/nanobot-gateway/internal/settings"
)

func newSession(t *testing.T, id string) *session.Session {
	t.Helper()
	reg := session.NewRegistry(HistoryState(10), nil)
	sess, err := reg.GetOrCreate(id, session.KindRequest)
	require.NoError(t, err)
	return sess
}

func TestHistoryDropsOldest(t *testing.T) {
	h := NewHistory(3)
	h.Append(Message{Content: "1"}, Message{Content: "2"})
	h.Append(Message{Content: "3"}, Message{Content: "4"})

	msgs := h.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "4", msgs[2].Content)
}

func TestHistoryDefaultLimit(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		h.Append(Message{Content: "x"})
	}
	assert.Equal(t, DefaultHistoryLimit, h.Len())
}

func TestEchoProcessor(t *testing.T) {
	sess := newSession(t, "web:default")
	proc, err := EchoFactory{}.NewProcessor(context.Background())
	require.NoError(t, err)

	reply, err := proc.Process(context.Background(), sess, chat.NewInboundMessage(chat.WebChannel, sess.ID, chat.DefaultSender, "hello", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)
	assert.Equal(t, 2, HistoryOf(sess).Len())
}

func TestHistoryOfForeignState(t *testing.T) {
	reg := session.NewRegistry(func(string) any { return "not a history" }, nil)
	sess, err := reg.GetOrCreate("s", session.KindRequest)
	require.NoError(t, err)
	assert.Nil(t, HistoryOf(sess))
}

// fakeCompletions serves /chat/completions and records each request body.
func fakeCompletions(t *testing.T, reply string, got *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*got = append(*got, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"` + reply + `"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeSettings(t *testing.T, content string) *settings.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return settings.NewStore(path, nil)
}

func TestOpenAIProcessorUsesSettingsAndHistory(t *testing.T) {
	var requests []map[string]any
	srv := fakeCompletions(t, "hi there", &requests)
	store := writeSettings(t, `{
  "providers": {"custom": {"apiKey": "sk-test", "apiBase": "`+srv.URL+`"}},
  "agents": {"defaults": {"model": "test-model"}}
}`)

	factory := NewOpenAIFactory(store, "", "be brief", nil)
	sess := newSession(t, "web:default")
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		proc, err := factory.NewProcessor(ctx)
		require.NoError(t, err)
		reply, err := proc.Process(ctx, sess, chat.NewInboundMessage(chat.WebChannel, sess.ID, chat.DefaultSender, text, time.Time{}))
		require.NoError(t, err)
		assert.Equal(t, "hi there", reply)
	}

	require.Len(t, requests, 2)
	assert.Equal(t, "test-model", requests[0]["model"])
	assert.Len(t, requests[0]["messages"], 2, "system prompt and user message")
	assert.Len(t, requests[1]["messages"], 4, "second turn carries the first exchange")
	assert.Equal(t, 4, HistoryOf(sess).Len())
}

func TestOpenAIFactoryNoProvider(t *testing.T) {
	store := writeSettings(t, `{"providers": {"openrouter": {"apiKey": ""}}}`)

	_, err := NewOpenAIFactory(store, "", "", nil).NewProcessor(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestOpenAIFactoryPinnedProvider(t *testing.T) {
	store := writeSettings(t, `{"providers": {"openrouter": {"apiKey": "k1"}, "groq": {"apiKey": ""}}}`)

	_, err := NewOpenAIFactory(store, "groq", "", nil).NewProcessor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"groq"`)

	proc, err := NewOpenAIFactory(store, "openrouter", "", nil).NewProcessor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openrouter", proc.(*openAIProcessor).provider)
	assert.Equal(t, DefaultModel, proc.(*openAIProcessor).model)
}

func TestOpenAIFactoryMissingSettings(t *testing.T) {
	store := settings.NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	_, err := NewOpenAIFactory(store, "", "", nil).NewProcessor(context.Background())
	require.Error(t, err)
	assert.Equal(t, chat.KindStore, chat.KindOf(err))
}

func TestOpenAIProcessorUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()
	store := writeSettings(t, `{"providers": {"custom": {"apiKey": "sk-test", "apiBase": "`+srv.URL+`"}}}`)

	proc, err := NewOpenAIFactory(store, "", "", nil).NewProcessor(context.Background())
	require.NoError(t, err)
	sess := newSession(t, "s")

	_, err = proc.Process(context.Background(), sess, chat.NewInboundMessage(chat.WebChannel, "s", chat.DefaultSender, "x", time.Time{}))
	require.Error(t, err)
	assert.Equal(t, 0, HistoryOf(sess).Len())
}
