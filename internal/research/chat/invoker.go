package chat

import (
	"context"
	"fmt"

	"deepsearch-workers/internal/common/logger"

	"github.com/google/uuid"
)

// Invoker issues private, single-turn chat calls derived from a caller's
// conversation. Nothing it sends or receives is appended to the caller's
// history or forwarded to the user.
type Invoker struct {
	transport Transport
	logger    logger.Logger
	newID     func() string
}

func NewInvoker(transport Transport, log logger.Logger) *Invoker {
	return &Invoker{
		transport: transport,
		logger:    log,
		newID:     uuid.NewString,
	}
}

// Invoke runs a private call and returns the assistant text. When both
// preamble and systemMessage are set, systemMessage is used.
func (i *Invoker) Invoke(ctx context.Context, conv Conversation, preamble, systemMessage string) (string, error) {
	resp, err := i.InvokeFull(ctx, conv, preamble, systemMessage)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// InvokeFull is Invoke returning the reconstructed response record.
func (i *Invoker) InvokeFull(ctx context.Context, conv Conversation, preamble, systemMessage string) (*Response, error) {
	req := Request{
		Conversation:   conv.DerivePrivate(i.newID()),
		SystemPreamble: preamble,
		SystemMessage:  systemMessage,
	}
	if req.SystemMessage != "" {
		req.SystemPreamble = ""
	}

	body, err := i.transport.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	resp, err := Collect(body, i.logger)
	if err != nil {
		return nil, fmt.Errorf("collect private chat %s: %w", req.Conversation.ConversationID, err)
	}

	i.logger.Debug("private chat completed", map[string]interface{}{
		"conversationId": req.Conversation.ConversationID,
		"model":          resp.Model,
		"length":         len(resp.Message.Content),
	})
	return resp, nil
}
