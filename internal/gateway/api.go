// ABOUTME: JSON API handlers for chat, status, settings, and session administration
// ABOUTME: Maps the chat error taxonomy onto HTTP status codes with {"error": ...} bodies

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/session"
	"github.com/2389/nanobot-gateway/internal/settings"
	"github.com/2389/nanobot-gateway/internal/store"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// StatusResponse is the reply to GET /api/status.
type StatusResponse struct {
	Status   string `json:"status"`
	Model    string `json:"model"`
	Sessions int    `json:"sessions"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SessionResponse describes one live session.
type SessionResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// EventResponse is one entry of a session's turn history.
type EventResponse struct {
	ID        string    `json:"event_id"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	IsError   bool      `json:"is_error"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse is the reply to GET /api/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Live      bool            `json:"live"`
	Events    []EventResponse `json:"events"`
}

// retryAfterSeconds is sent with retryable turn failures.
const retryAfterSeconds = "1"

// gatewayControlMessage is returned by the start/stop stubs.
const gatewayControlMessage = "Gateway control from web UI is not yet implemented."

// handleChat runs one request/response turn.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := g.httpAdapter.Handle(r.Context(), req.Message, req.SessionID)
	if err != nil {
		g.sendTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  out.Text(),
		SessionID: out.SessionID(),
	})
}

// sendTurnError maps a failed turn to a status code. Processing failures
// carry the processor's message so the UI can show it. Failures worth
// repeating get a Retry-After hint.
func (g *Gateway) sendTurnError(w http.ResponseWriter, err error) {
	switch chat.KindOf(err) {
	case chat.KindValidation:
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case chat.KindProcessing, chat.KindStore:
		g.logger.Warn("turn failed", "error", err)
		if chat.Retryable(err) {
			w.Header().Set("Retry-After", retryAfterSeconds)
		}
		sendJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		g.logger.Error("turn failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleStatus reports liveness, the default model, and the session count.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := g.settings.Read(r.Context())
	if err != nil {
		g.sendSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   "running",
		Model:    doc.Agents.Defaults.Model,
		Sessions: g.registry.Count(),
	})
}

// handleGetConfig returns the settings document without secrets.
func (g *Gateway) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := g.settings.Read(r.Context())
	if err != nil {
		g.sendSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Sanitize())
}

// handleUpdateConfig sets a provider key and/or the default model.
func (g *Gateway) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req settings.ConfigUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.settings.UpdateConfig(r.Context(), req); err != nil {
		g.sendSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleGetSettings returns the raw channel sections.
func (g *Gateway) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sections, err := g.settings.ChannelSections(r.Context())
	if err != nil {
		g.sendSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// handleSaveChannel replaces the modeled fields of one channel section.
func (g *Gateway) handleSaveChannel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	if !settings.IsChannel(name) {
		sendJSONError(w, http.StatusNotFound, "unknown channel: "+name)
		return
	}

	var req settings.ChannelSettings
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.settings.SaveChannel(r.Context(), name, req); err != nil {
		g.sendSettingsError(w, err)
		return
	}
	g.logger.Info("channel settings saved", "channel", name, "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleTestChannel checks stored credentials. Failures are reported in the
// body with status 200.
func (g *Gateway) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	if !settings.IsChannel(name) {
		sendJSONError(w, http.StatusNotFound, "unknown channel: "+name)
		return
	}
	writeJSON(w, http.StatusOK, g.settings.CheckChannel(r.Context(), name))
}

func (g *Gateway) handleGatewayStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{
		Error: gatewayControlMessage + " Please run 'nanobot gateway' in terminal.",
	})
}

func (g *Gateway) handleGatewayStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Error: gatewayControlMessage})
}

func (g *Gateway) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleListSessions lists live sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := g.registry.List()
	out := make([]SessionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionResponse(info))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteSession resets a session. With ?purge=true its recorded
// history is deleted as well.
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g.registry.Remove(id)

	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		n, err := g.store.DeleteSession(r.Context(), id)
		if err != nil {
			g.logger.Error("failed to purge session history", "session_id", id, "error", err)
			sendJSONError(w, http.StatusInternalServerError, "failed to purge session history")
			return
		}
		g.logger.Info("session history purged", "session_id", id, "events", n)
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleSessionHistory returns recorded turn events for a session, oldest first.
func (g *Gateway) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := g.store.ListEvents(r.Context(), id, store.ClampLimit(limit))
	if err != nil {
		g.logger.Error("failed to list session history", "session_id", id, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	_, live := g.registry.Get(id)
	resp := HistoryResponse{
		SessionID: id,
		Live:      live,
		Events:    make([]EventResponse, 0, len(events)),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, EventResponse{
			ID:        e.ID,
			Channel:   e.Channel,
			Direction: string(e.Direction),
			Author:    e.Author,
			Text:      e.Text,
			IsError:   e.IsError,
			Timestamp: e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// sendSettingsError maps settings store failures. A missing file tells the
// operator how to create it.
func (g *Gateway) sendSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrUnknownChannel):
		sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, settings.ErrNotFound):
		sendJSONError(w, http.StatusInternalServerError, fmt.Sprintf("%v (run 'nanobot-web init')", err))
	default:
		g.logger.Error("settings operation failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func sessionResponse(info session.Info) SessionResponse {
	return SessionResponse{
		ID:         info.ID,
		Kind:       string(info.Kind),
		CreatedAt:  info.CreatedAt,
		LastActive: info.LastActive,
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
