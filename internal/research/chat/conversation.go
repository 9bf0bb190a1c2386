// Package chat models the conversation context handed to the research engine
// and the NDJSON chunk protocol spoken by the chat transport.
package chat

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Date    string `json:"date,omitempty"`
}

// Conversation is the caller's in-progress chat plus the metadata the chat
// transport needs. PageInstanceID doubles as the progress session id.
type Conversation struct {
	Messages        []Message              `json:"messages"`
	ConversationID  string                 `json:"conversation_id,omitempty"`
	PageInstanceID  string                 `json:"page_instance_id,omitempty"`
	Model           string                 `json:"model,omitempty"`
	HistoryMetadata map[string]interface{} `json:"history_metadata"`
	Headers         map[string]string      `json:"headers,omitempty"`
}

// SessionID identifies the live progress channel for this conversation.
func (c Conversation) SessionID() string {
	return c.PageInstanceID
}

// LastUserMessage returns the content of the most recent user turn.
func (c Conversation) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy sharing no mutable state with c.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	if c.HistoryMetadata != nil {
		out.HistoryMetadata = deepCopyMap(c.HistoryMetadata)
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// DerivePrivate builds the context for a side-channel call: a deep copy with
// continuation metadata cleared, a fresh conversation id, and only the last
// turn of history.
func (c Conversation) DerivePrivate(conversationID string) Conversation {
	out := c.Clone()
	out.HistoryMetadata = nil
	out.ConversationID = conversationID
	if n := len(out.Messages); n > 1 {
		out.Messages = out.Messages[n-1:]
	}
	return out
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		return v
	}
}
