// Package settings is the config store for the structured settings document
// shared with the rest of nanobot (providers, agent defaults, tools, and the
// telegram/whatsapp/discord/feishu channel sections).
//
// # Document
//
// The document is JSON with camelCase keys:
//
//	{
//	  "version": 1,
//	  "providers": {"openrouter": {"apiKey": "sk-...", "apiBase": ""}},
//	  "agents": {"defaults": {"model": "anthropic/claude-opus-4-5"}},
//	  "tools": {},
//	  "channels": {
//	    "telegram": {"enabled": true, "token": "123:abc", "allowFrom": ["u1"]},
//	    "feishu": {"enabled": false, "appId": "", "appSecret": "", "allowFrom": []}
//	  }
//	}
//
// Missing sections read as empty. A missing version is version 1; newer
// versions are rejected.
//
// # Writes
//
// Writes patch the raw JSON in place (sjson), so keys this package does not
// model survive. The merged result is validated and then swapped in with a
// temp file and rename; a failed write never leaves a partial document.
//
// # Caching
//
// By default every Read goes to disk, with concurrent loads coalesced. With
// caching enabled the parsed document is kept until a write or Invalidate;
// the Watcher calls Invalidate when the file changes on disk.
package settings
