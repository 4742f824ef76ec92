// ABOUTME: OpenAI-compatible LLM processor driven by the settings document
// ABOUTME: Resolves provider, key, and model per turn and keeps history in session state

package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/dispatch"
	"github.com/2389/nanobot-gateway/internal/session"
	"github.com/2389/nanobot-gateway/internal/settings"
)

// DefaultModel is used when the settings document names no model.
const DefaultModel = "anthropic/claude-opus-4-5"

// ErrNoProvider is returned when no provider has an API key.
var ErrNoProvider = errors.New("no LLM provider configured")

// providerOrder is the preference order when no provider is pinned.
var providerOrder = []string{"openrouter", "deepseek", "anthropic", "openai", "gemini", "zhipu", "groq", "vllm"}

// baseURLs maps provider names to their OpenAI-compatible endpoints.
// Providers not listed use apiBase from settings, or the OpenAI default.
var baseURLs = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"zhipu":      "https://open.bigmodel.cn/api/paas/v4",
	"groq":       "https://api.groq.com/openai/v1",
}

// SettingsReader is the part of settings.Store the processor needs.
type SettingsReader interface {
	Read(ctx context.Context) (*settings.Document, error)
}

// OpenAIFactory builds LLM processors from the current settings.
type OpenAIFactory struct {
	settings     SettingsReader
	provider     string
	systemPrompt string
	logger       *slog.Logger
}

// NewOpenAIFactory creates a factory. provider pins one provider by name;
// empty picks the first configured one in preference order.
func NewOpenAIFactory(store SettingsReader, provider, systemPrompt string, logger *slog.Logger) *OpenAIFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIFactory{
		settings:     store,
		provider:     provider,
		systemPrompt: systemPrompt,
		logger:       logger.With("component", "openai-processor"),
	}
}

// NewProcessor implements dispatch.Factory.
func (f *OpenAIFactory) NewProcessor(ctx context.Context) (dispatch.Processor, error) {
	doc, err := f.settings.Read(ctx)
	if err != nil {
		return nil, err
	}

	name, pc, err := f.resolveProvider(doc)
	if err != nil {
		return nil, err
	}

	cfg := openai.DefaultConfig(pc.APIKey)
	if pc.APIBase != "" {
		cfg.BaseURL = strings.TrimRight(pc.APIBase, "/")
	} else if base, ok := baseURLs[name]; ok {
		cfg.BaseURL = base
	}

	model := doc.Agents.Defaults.Model
	if model == "" {
		model = DefaultModel
	}

	return &openAIProcessor{
		client:       openai.NewClientWithConfig(cfg),
		provider:     name,
		model:        model,
		maxTokens:    doc.Agents.Defaults.MaxTokens,
		temperature:  doc.Agents.Defaults.Temperature,
		systemPrompt: f.systemPrompt,
		logger:       f.logger,
	}, nil
}

func (f *OpenAIFactory) resolveProvider(doc *settings.Document) (string, settings.ProviderConfig, error) {
	if f.provider != "" {
		pc, ok := doc.Providers[f.provider]
		if !ok || pc.APIKey == "" {
			return "", settings.ProviderConfig{}, fmt.Errorf("%w: provider %q has no API key", ErrNoProvider, f.provider)
		}
		return f.provider, pc, nil
	}

	for _, name := range providerOrder {
		if pc, ok := doc.Providers[name]; ok && pc.APIKey != "" {
			return name, pc, nil
		}
	}
	// Providers outside the known list, in name order
	for _, name := range doc.ProviderNames() {
		if pc := doc.Providers[name]; pc.APIKey != "" {
			return name, pc, nil
		}
	}
	return "", settings.ProviderConfig{}, ErrNoProvider
}

type openAIProcessor struct {
	client       *openai.Client
	provider     string
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	logger       *slog.Logger
}

func (p *openAIProcessor) Process(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (string, error) {
	hist := HistoryOf(sess)

	var messages []openai.ChatCompletionMessage
	if p.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt})
	}
	if hist != nil {
		for _, m := range hist.Messages() {
			messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Text()})

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	p.logger.Debug("requesting completion", "session_id", sess.ID, "provider", p.provider, "model", p.model, "messages", len(messages))
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.provider)
	}

	reply := resp.Choices[0].Message.Content
	if hist != nil {
		hist.Append(
			Message{Role: RoleUser, Content: msg.Text()},
			Message{Role: RoleAssistant, Content: reply},
		)
	}
	return reply, nil
}
