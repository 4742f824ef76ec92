// Package config handles configuration loading for nanobot-web.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Fields missing from the file keep the values from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from NANOBOT_WEB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/nanobot/web.yaml
//  3. ~/.config/nanobot/web.yaml
//
// A path ending in .toml is decoded as TOML with the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:18080"
//
//	database:
//	  path: "~/.nanobot/web.db"          # turn ledger
//
//	settings:
//	  path: "~/.nanobot/config.json"     # channel and provider settings
//	  watch: true                        # reload on external edits
//
//	sessions:
//	  idle_timeout: "0s"                 # 0 keeps request sessions until shutdown
//	  sweep_interval: "1m"
//
//	processor:
//	  kind: "openai"                     # openai, echo
//	  provider: ""                       # pin a provider; empty picks the first configured
//	  system_prompt: ""
//	  history_limit: 50
//
//	stream:
//	  frame_rate: 0                      # frames per second per connection, 0 = unlimited
//	  frame_burst: 0
//	  write_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "nanobot"
//	  auth_key: "${TS_AUTHKEY}"
//
//	logging:
//	  level: "info"                      # debug, info, warn, error
//	  format: "text"                     # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Duration Parsing
//
// Durations use Go's time.ParseDuration syntax ("30s", "5m", "1h").
// Negative durations are rejected.
package config
