package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAITransport talks to an OpenAI-compatible chat completions endpoint and
// re-encodes the SSE deltas as NDJSON chunks, so the rest of the engine sees
// the same protocol as with the chat backend.
type OpenAITransport struct {
	client       openai.Client
	model        string
	systemPrompt string
}

// NewOpenAITransport builds the transport. systemPrompt is the application's
// own system instruction that preambles are prefixed to.
func NewOpenAITransport(apiKey, baseURL, model, systemPrompt string, httpClient *http.Client) *OpenAITransport {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAITransport{
		client:       openai.NewClient(opts...),
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// effectiveSystem resolves the system instruction for a request: an explicit
// system message wins, otherwise the preamble is prefixed to the configured
// system prompt.
func (t *OpenAITransport) effectiveSystem(req Request) string {
	if req.SystemMessage != "" {
		return req.SystemMessage
	}
	return req.SystemPreamble + t.systemPrompt
}

func (t *OpenAITransport) params(req Request) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system := t.effectiveSystem(req); system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, m := range req.Conversation.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}

	model := t.model
	if req.Conversation.Model != "" {
		model = req.Conversation.Model
	}
	return openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}
}

func (t *OpenAITransport) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	params := t.params(req)
	metadata := req.Conversation.HistoryMetadata

	pr, pw := io.Pipe()
	go func() {
		stream := t.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		enc := json.NewEncoder(pw)
		for stream.Next() {
			delta := stream.Current()
			chunk := Chunk{
				ID:              delta.ID,
				Model:           delta.Model,
				HistoryMetadata: metadata,
			}
			for _, choice := range delta.Choices {
				chunk.Choices = append(chunk.Choices, ChunkChoice{
					Messages: []Message{{Role: RoleAssistant, Content: choice.Delta.Content}},
				})
			}
			if err := enc.Encode(chunk); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := stream.Err(); err != nil {
			pw.CloseWithError(fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}
		pw.Close()
	}()

	return pr, nil
}

var _ Transport = (*OpenAITransport)(nil)
