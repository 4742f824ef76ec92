// ABOUTME: Channel settings save, config updates, and credential format checks
// ABOUTME: Saves write only the fields each channel defines; checks never fail hard

package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ChannelSettings is the body accepted when saving a channel section.
// Which fields are persisted depends on the channel.
type ChannelSettings struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AppID     string   `json:"appId"`
	AppSecret string   `json:"appSecret"`
	AllowFrom []string `json:"allowFrom"`
}

// SaveChannel replaces the modeled fields of one channel section.
func (s *Store) SaveChannel(ctx context.Context, channel string, in ChannelSettings) error {
	patch, err := channelPatch(channel, in)
	if err != nil {
		return err
	}
	return s.Write(ctx, patch)
}

func channelPatch(channel string, in ChannelSettings) (Patch, error) {
	base := "channels." + channel + "."
	allow := nonNil(in.AllowFrom)

	switch channel {
	case ChannelTelegram, ChannelDiscord:
		return Patch{
			{Path: base + "enabled", Value: in.Enabled},
			{Path: base + "token", Value: in.Token},
			{Path: base + "allowFrom", Value: allow},
		}, nil
	case ChannelWhatsApp:
		return Patch{
			{Path: base + "enabled", Value: in.Enabled},
			{Path: base + "allowFrom", Value: allow},
		}, nil
	case ChannelFeishu:
		return Patch{
			{Path: base + "enabled", Value: in.Enabled},
			{Path: base + "appId", Value: in.AppID},
			{Path: base + "appSecret", Value: in.AppSecret},
			{Path: base + "allowFrom", Value: allow},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
}

// ConfigUpdate changes provider credentials and the default model.
// Nil fields are left alone.
type ConfigUpdate struct {
	Provider *string `json:"provider"`
	APIKey   *string `json:"apiKey"`
	Model    *string `json:"model"`
}

// UpdateConfig applies u. An API key is stored only when both provider and
// key are given and the provider already has a section in the document.
func (s *Store) UpdateConfig(ctx context.Context, u ConfigUpdate) error {
	return s.Modify(ctx, func(raw []byte) (Patch, error) {
		var patch Patch
		if u.Provider != nil && u.APIKey != nil {
			path := "providers." + Key(*u.Provider)
			if gjson.GetBytes(raw, path).Exists() {
				patch = append(patch, Field{Path: path + ".apiKey", Value: *u.APIKey})
			}
		}
		if u.Model != nil {
			patch = append(patch, Field{Path: "agents.defaults.model", Value: *u.Model})
		}
		return patch, nil
	})
}

// CheckResult is the outcome of a credential format check.
type CheckResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckChannel validates the stored credentials for channel without contacting
// the remote service. It never returns an error; failures are reported in the result.
func (s *Store) CheckChannel(ctx context.Context, channel string) CheckResult {
	doc, err := s.Read(ctx)
	if err != nil {
		return CheckResult{Error: err.Error()}
	}

	c := doc.Channels
	switch channel {
	case ChannelTelegram:
		if c.Telegram.Token == "" || !strings.Contains(c.Telegram.Token, ":") {
			return CheckResult{Error: "Invalid token format"}
		}
		return CheckResult{Success: true, Message: "Token format is valid"}
	case ChannelDiscord:
		if c.Discord.Token == "" {
			return CheckResult{Error: "No token provided"}
		}
		return CheckResult{Success: true, Message: "Token is set"}
	case ChannelFeishu:
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return CheckResult{Error: "App ID or Secret missing"}
		}
		return CheckResult{Success: true, Message: "Credentials are set"}
	default:
		return CheckResult{Error: fmt.Sprintf("no credential check for channel %q", channel)}
	}
}
