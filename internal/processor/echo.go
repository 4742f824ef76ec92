// ABOUTME: Echo processor that replies with the inbound text
// ABOUTME: Used for local runs and tests where no LLM provider is configured

package processor

import (
	"context"

	"github.com/2389/nanobot-gateway/internal/chat"
	"github.com/2389/nanobot-gateway/internal/dispatch"
	"github.com/2389/nanobot-gateway/internal/session"
)

// EchoPrefix is prepended to every echo reply.
const EchoPrefix = "echo: "

// EchoFactory builds echo processors.
type EchoFactory struct{}

// NewProcessor implements dispatch.Factory.
func (EchoFactory) NewProcessor(context.Context) (dispatch.Processor, error) {
	return echoProcessor{}, nil
}

type echoProcessor struct{}

func (echoProcessor) Process(ctx context.Context, sess *session.Session, msg *chat.InboundMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply := EchoPrefix + msg.Text()
	if h := HistoryOf(sess); h != nil {
		h.Append(
			Message{Role: RoleUser, Content: msg.Text()},
			Message{Role: RoleAssistant, Content: reply},
		)
	}
	return reply, nil
}
