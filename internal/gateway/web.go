// ABOUTME: Browser-facing handlers: embedded pages, static assets, and the /ws upgrade
// ABOUTME: Also probes Node.js for the WhatsApp login instructions

package gateway

import (
	"context"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/2389/nanobot-gateway/internal/assets"
	"github.com/2389/nanobot-gateway/internal/channel"
)

// fallbackIndex is served when the embedded chat page is missing.
const fallbackIndex = `<!DOCTYPE html>
<html>
<head>
    <title>Nanobot Web UI</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
    <h1>Nanobot Web UI</h1>
    <p>Static files not found. Please create static/index.html</p>
</body>
</html>
`

const nodeMissingMessage = "Node.js is not installed. Please install Node.js ≥18 to use WhatsApp."

// nodeProbeTimeout bounds the node --version call.
const nodeProbeTimeout = 5 * time.Second

// WhatsAppQRResponse is the reply to GET /api/whatsapp/qr. The QR code is
// shown in the terminal running the login command, so QR is always null.
type WhatsAppQRResponse struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	QR           *string  `json:"qr"`
	Message      string   `json:"message,omitempty"`
	Command      string   `json:"command,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := assets.Page(assets.IndexPage)
	if err != nil {
		page = []byte(fallbackIndex)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (g *Gateway) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	page, err := assets.Page(assets.SettingsPage)
	if err != nil {
		http.Error(w, "Settings page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (g *Gateway) staticHandler() http.Handler {
	return http.StripPrefix("/static/", assets.FileServer())
}

// handleWebSocket upgrades the request and serves it as a duplex session
// until either side closes or the gateway shuts down.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !g.trackStream() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.streams.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := channel.NewWSConn(ws, g.config.Stream.WriteTimeout)
	if err := g.stream.Serve(g.streamCtx, conn); err != nil {
		g.logger.Debug("websocket closed", "remote", r.RemoteAddr, "error", err)
	}
}

// handleWhatsAppQR checks for Node.js and returns login instructions.
func (g *Gateway) handleWhatsAppQR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), nodeProbeTimeout)
	defer cancel()

	version, err := g.nodeVersion(ctx)
	if err != nil {
		g.logger.Info("node.js probe failed", "error", err)
		writeJSON(w, http.StatusOK, WhatsAppQRResponse{Error: nodeMissingMessage})
		return
	}
	g.logger.Debug("node.js found", "version", version)

	writeJSON(w, http.StatusOK, WhatsAppQRResponse{
		Message: "To connect WhatsApp, please run this command in a separate terminal:",
		Command: "nanobot channels login",
		Instructions: []string{
			"1. Open a new terminal/command prompt",
			"2. Run: nanobot channels login",
			"3. A QR code will appear in the terminal",
			"4. Scan it with WhatsApp on your phone",
			"5. Go to Settings → Linked Devices → Link a Device",
			"6. Scan the QR code",
		},
	})
}

// probeNodeVersion runs node --version.
func probeNodeVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "node", "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
