// ABOUTME: Versioned settings document schema with per-channel sections
// ABOUTME: Parses, normalizes missing sections, and validates with go-playground/validator

package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// CurrentVersion is the newest document version this package understands.
const CurrentVersion = 1

// Channel names with a settings section.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelDiscord  = "discord"
	ChannelFeishu   = "feishu"
)

// ChannelNames lists every channel section in display order.
var ChannelNames = []string{ChannelTelegram, ChannelWhatsApp, ChannelDiscord, ChannelFeishu}

// ErrUnknownChannel is returned for a channel name without a settings section.
var ErrUnknownChannel = errors.New("unknown channel")

// IsChannel reports whether name has a settings section.
func IsChannel(name string) bool {
	for _, c := range ChannelNames {
		if c == name {
			return true
		}
	}
	return false
}

// Document is the parsed settings file.
type Document struct {
	Version   int                       `json:"version,omitempty" validate:"gte=0"`
	Providers map[string]ProviderConfig `json:"providers" validate:"dive"`
	Agents    AgentsConfig              `json:"agents"`
	Tools     json.RawMessage           `json:"tools,omitempty"`
	Channels  ChannelsConfig            `json:"channels"`
}

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty" validate:"omitempty,url"`
}

// AgentsConfig holds agent settings.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// AgentDefaults holds the default model parameters.
type AgentDefaults struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens,omitempty" validate:"gte=0"`
	Temperature float32 `json:"temperature,omitempty" validate:"gte=0,lte=2"`
}

// ChannelsConfig holds one section per messaging channel.
type ChannelsConfig struct {
	Telegram TokenChannel    `json:"telegram"`
	WhatsApp WhatsAppChannel `json:"whatsapp"`
	Discord  TokenChannel    `json:"discord"`
	Feishu   FeishuChannel   `json:"feishu"`
}

// TokenChannel is a channel authenticated by a single bot token.
type TokenChannel struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom" validate:"dive,required"`
}

// WhatsAppChannel authenticates through the bridge login, so it has no token.
type WhatsAppChannel struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom" validate:"dive,required"`
}

// FeishuChannel authenticates with an app id and secret.
type FeishuChannel struct {
	Enabled   bool     `json:"enabled"`
	AppID     string   `json:"appId"`
	AppSecret string   `json:"appSecret"`
	AllowFrom []string `json:"allowFrom" validate:"dive,required"`
}

var validate = validator.New()

// ParseDocument decodes, normalizes, and validates a settings document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings document: %w", err)
	}
	doc.normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DefaultDocument returns an empty current-version document.
func DefaultDocument() *Document {
	doc := &Document{Version: CurrentVersion}
	doc.normalize()
	return doc
}

// Validate checks version support and field constraints.
func (d *Document) Validate() error {
	if d.Version > CurrentVersion {
		return fmt.Errorf("unsupported settings version %d (newest supported is %d)", d.Version, CurrentVersion)
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("validating settings document: %w", err)
	}
	return nil
}

// normalize fills missing sections with empty values.
func (d *Document) normalize() {
	if d.Version == 0 {
		d.Version = CurrentVersion
	}
	if d.Providers == nil {
		d.Providers = make(map[string]ProviderConfig)
	}
	if len(d.Tools) == 0 || string(d.Tools) == "null" {
		d.Tools = json.RawMessage(`{}`)
	}
	c := &d.Channels
	c.Telegram.AllowFrom = nonNil(c.Telegram.AllowFrom)
	c.WhatsApp.AllowFrom = nonNil(c.WhatsApp.AllowFrom)
	c.Discord.AllowFrom = nonNil(c.Discord.AllowFrom)
	c.Feishu.AllowFrom = nonNil(c.Feishu.AllowFrom)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ProviderNames returns the configured provider names in sorted order.
func (d *Document) ProviderNames() []string {
	names := make([]string, 0, len(d.Providers))
	for name := range d.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SanitizedConfig is the document with secrets replaced by presence flags.
type SanitizedConfig struct {
	Agents    AgentsConfig              `json:"agents"`
	Providers map[string]ProviderStatus `json:"providers"`
	Tools     json.RawMessage           `json:"tools"`
	Channels  map[string]ChannelStatus  `json:"channels"`
}

// ProviderStatus reports whether a provider has credentials.
type ProviderStatus struct {
	Configured bool `json:"configured"`
}

// ChannelStatus reports a channel's switch and credential presence.
type ChannelStatus struct {
	Enabled    bool     `json:"enabled"`
	Configured bool     `json:"configured"`
	AllowFrom  []string `json:"allowFrom"`
}

// Sanitize returns a copy of the document safe to hand to clients.
func (d *Document) Sanitize() *SanitizedConfig {
	out := &SanitizedConfig{
		Agents:    d.Agents,
		Providers: make(map[string]ProviderStatus, len(d.Providers)),
		Tools:     d.Tools,
		Channels:  make(map[string]ChannelStatus, len(ChannelNames)),
	}
	for name, p := range d.Providers {
		out.Providers[name] = ProviderStatus{Configured: p.APIKey != ""}
	}
	c := d.Channels
	out.Channels[ChannelTelegram] = ChannelStatus{
		Enabled:    c.Telegram.Enabled,
		Configured: c.Telegram.Token != "",
		AllowFrom:  c.Telegram.AllowFrom,
	}
	out.Channels[ChannelWhatsApp] = ChannelStatus{
		Enabled:    c.WhatsApp.Enabled,
		Configured: true,
		AllowFrom:  c.WhatsApp.AllowFrom,
	}
	out.Channels[ChannelDiscord] = ChannelStatus{
		Enabled:    c.Discord.Enabled,
		Configured: c.Discord.Token != "",
		AllowFrom:  c.Discord.AllowFrom,
	}
	out.Channels[ChannelFeishu] = ChannelStatus{
		Enabled:    c.Feishu.Enabled,
		Configured: c.Feishu.AppID != "" && c.Feishu.AppSecret != "",
		AllowFrom:  c.Feishu.AllowFrom,
	}
	return out
}
