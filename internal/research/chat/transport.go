package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	commonhttp "deepsearch-workers/internal/common/http"
)

var ErrTransport = errors.New("CHAT_TRANSPORT_FAILED")

// Request is what a transport sends: the conversation plus an optional
// system preamble (prefixed to the configured system prompt) or a system
// message that replaces it.
type Request struct {
	Conversation   Conversation
	SystemPreamble string
	SystemMessage  string
}

// Transport streams a chat completion as NDJSON chunks (see Chunk).
type Transport interface {
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

type backendRequest struct {
	Messages        []Message              `json:"messages"`
	ConversationID  string                 `json:"conversation_id"`
	PageInstanceID  string                 `json:"page_instance_id,omitempty"`
	Model           string                 `json:"model,omitempty"`
	HistoryMetadata map[string]interface{} `json:"history_metadata"`
	SystemPreamble  string                 `json:"system_preamble,omitempty"`
	SystemMessage   string                 `json:"system_message,omitempty"`
}

// HTTPTransport posts the conversation to the chat backend's conversation
// endpoint, which answers with application/json-lines.
type HTTPTransport struct {
	client   *commonhttp.Client
	endpoint string
	apiKey   string
}

func NewHTTPTransport(client *commonhttp.Client, baseURL, path, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + path,
		apiKey:   apiKey,
	}
}

func (t *HTTPTransport) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	conv := req.Conversation
	body := backendRequest{
		Messages:        conv.Messages,
		ConversationID:  conv.ConversationID,
		PageInstanceID:  conv.PageInstanceID,
		Model:           conv.Model,
		HistoryMetadata: conv.HistoryMetadata,
		SystemPreamble:  req.SystemPreamble,
		SystemMessage:   req.SystemMessage,
	}

	headers := make(map[string]string, len(conv.Headers)+2)
	for k, v := range conv.Headers {
		headers[k] = v
	}
	headers["Accept"] = "application/json-lines"
	if t.apiKey != "" {
		headers["Authorization"] = "Bearer " + t.apiKey
	}

	resp, err := t.client.PostJSON(ctx, t.endpoint, body, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

var _ Transport = (*HTTPTransport)(nil)
