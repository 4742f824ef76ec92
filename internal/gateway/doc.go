// Package gateway orchestrates the nanobot web gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator. It owns the session
// registry, the dispatcher, the settings store, the turn ledger, both channel
// adapters, and the HTTP server, and it decides the order in which they start
// and stop.
//
// # Wiring
//
//	registry   := session.NewRegistry(processor.HistoryState(limit), logger)
//	dispatcher := dispatch.New(factory, logger, dispatch.WithRecorder(ledger), dispatch.WithObserver(metrics))
//	httpChan   := channel.NewHTTPAdapter(registry, dispatcher, logger)
//	stream     := channel.NewStreamAdapter(registry, dispatcher, logger, ...)
//
// The factory is chosen by processor.kind: "echo" for a fixed echo reply,
// "openai" for an OpenAI-compatible provider configured in the settings
// document.
//
// # HTTP API
//
//   - GET / and GET /settings - embedded pages
//   - GET /static/... - embedded assets
//   - POST /api/chat - one request/response turn
//   - GET /ws - duplex websocket session
//   - GET /api/status, GET|POST /api/config, GET /api/settings
//   - POST /api/settings/{channel}, GET /api/test/{channel}
//   - GET /api/whatsapp/qr, /api/gateway/{start,stop,status}
//   - GET /api/sessions, DELETE /api/sessions/{id}, GET /api/sessions/{id}/history
//   - GET /health, GET /health/ready
//   - GET /metrics (when enabled)
//
// Errors are returned as {"error": "..."}. Validation failures map to 400;
// processing and store failures map to 500.
//
// # Lifecycle
//
// Run listens on server.http_addr, or on :80 of a tsnet node when tailscale
// is enabled, starts the settings watcher and idle sweeper if configured, and
// blocks until its context is canceled. Shutdown stops the HTTP server,
// closes every websocket connection and waits for turns still running on
// them to be recorded, stops the background workers, and closes the ledger.
package gateway
