package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	commonhttp "deepsearch-workers/internal/common/http"
	"deepsearch-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test helpers
// ==========================

func sampleConversation() Conversation {
	return Conversation{
		Messages: []Message{
			{Role: RoleUser, Content: "first question"},
			{Role: RoleAssistant, Content: "first answer"},
			{Role: RoleUser, Content: "what changed in go 1.24?"},
		},
		ConversationID:  "conv-1",
		PageInstanceID:  "page-1",
		HistoryMetadata: map[string]interface{}{"conversation_id": "conv-1", "nested": map[string]interface{}{"k": "v"}},
		Headers:         map[string]string{"X-Tenant": "acme"},
	}
}

// recordingTransport captures requests and replays a canned stream.
type recordingTransport struct {
	mu       sync.Mutex
	requests []Request
	body     string
	err      error
}

func (r *recordingTransport) Stream(_ context.Context, req Request) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return io.NopCloser(strings.NewReader(r.body)), nil
}

// ==========================
// Collect
// ==========================

func TestCollect_ConcatenatesInArrivalOrder(t *testing.T) {
	stream := `{"id":"a","model":"m1","history_metadata":{"x":1},"choices":[{"messages":[{"role":"assistant","content":"Hel"}]}]}
{"id":"b","model":"m2","choices":[{"messages":[{"role":"assistant","content":"lo"}]}]}
`
	resp, err := Collect(strings.NewReader(stream), logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, RoleAssistant, resp.Message.Role)
	assert.Equal(t, "a", resp.ID)
	assert.Equal(t, "a", resp.Message.ID)
	assert.Equal(t, "m1", resp.Model)
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, resp.HistoryMetadata)

	_, err = time.Parse(dateLayout, resp.Message.Date)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp.Message.Date, "Z"))
}

func TestCollect_SkipsMalformedLines(t *testing.T) {
	stream := `{"choices":[{"messages":[{"content":"A"}]}]}
this is not json
{"choices":[{"messages":[{"content":"B"},{"content":"C"}]},{"messages":[{"content":"D"}]}]}`
	resp, err := Collect(strings.NewReader(stream), logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "ABCD", resp.Message.Content)
}

func TestCollect_EmptyStream(t *testing.T) {
	resp, err := Collect(strings.NewReader(""), logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, "", resp.Message.Content)
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, `{"choices":[{"messages":[{"content":"partial"}]}]}`+"\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestCollect_ReadErrorFails(t *testing.T) {
	_, err := Collect(&failingReader{}, logger.NewNoOpLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection reset")
}

// ==========================
// Conversation
// ==========================

func TestDerivePrivate_IsolatesCallerConversation(t *testing.T) {
	conv := sampleConversation()
	private := conv.DerivePrivate("private-1")

	assert.Equal(t, "private-1", private.ConversationID)
	assert.Nil(t, private.HistoryMetadata)
	require.Len(t, private.Messages, 1)
	assert.Equal(t, "what changed in go 1.24?", private.Messages[0].Content)

	private.Messages[0].Content = "mutated"
	private.Headers["X-Tenant"] = "other"

	assert.Len(t, conv.Messages, 3)
	assert.Equal(t, "what changed in go 1.24?", conv.Messages[2].Content)
	assert.Equal(t, "acme", conv.Headers["X-Tenant"])
	assert.Equal(t, "conv-1", conv.ConversationID)
	assert.NotNil(t, conv.HistoryMetadata)
}

func TestClone_DeepCopiesMetadata(t *testing.T) {
	conv := sampleConversation()
	clone := conv.Clone()
	clone.HistoryMetadata["nested"].(map[string]interface{})["k"] = "changed"

	assert.Equal(t, "v", conv.HistoryMetadata["nested"].(map[string]interface{})["k"])
}

func TestLastUserMessage(t *testing.T) {
	assert.Equal(t, "what changed in go 1.24?", sampleConversation().LastUserMessage())
	assert.Equal(t, "", Conversation{}.LastUserMessage())
}

// ==========================
// Invoker
// ==========================

func TestInvoker_SendsPrivateContext(t *testing.T) {
	transport := &recordingTransport{body: `{"choices":[{"messages":[{"content":"[\"go 1.24\"]"}]}]}`}
	inv := NewInvoker(transport, logger.NewTestLogger(t))
	inv.newID = func() string { return "fixed-id" }

	conv := sampleConversation()
	out, err := inv.Invoke(context.Background(), conv, "plan searches", "")
	require.NoError(t, err)
	assert.Equal(t, `["go 1.24"]`, out)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "plan searches", req.SystemPreamble)
	assert.Empty(t, req.SystemMessage)
	assert.Equal(t, "fixed-id", req.Conversation.ConversationID)
	assert.Nil(t, req.Conversation.HistoryMetadata)
	assert.Len(t, req.Conversation.Messages, 1)

	assert.Len(t, conv.Messages, 3)
	assert.Equal(t, "conv-1", conv.ConversationID)
}

func TestInvoker_OverrideWinsOverPreamble(t *testing.T) {
	transport := &recordingTransport{body: `{"choices":[{"messages":[{"content":"ok"}]}]}`}
	inv := NewInvoker(transport, logger.NewNoOpLogger())

	_, err := inv.Invoke(context.Background(), sampleConversation(), "preamble", "override")
	require.NoError(t, err)

	req := transport.requests[0]
	assert.Equal(t, "override", req.SystemMessage)
	assert.Empty(t, req.SystemPreamble)
}

func TestInvoker_TransportErrorPropagates(t *testing.T) {
	transport := &recordingTransport{err: ErrTransport}
	inv := NewInvoker(transport, logger.NewNoOpLogger())

	_, err := inv.Invoke(context.Background(), sampleConversation(), "p", "")
	assert.ErrorIs(t, err, ErrTransport)
}

// ==========================
// HTTPTransport
// ==========================

func TestHTTPTransport_Stream(t *testing.T) {
	var got backendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversation", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json-lines", r.Header.Get("Accept"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json-lines")
		_, _ = io.WriteString(w, `{"id":"r1","choices":[{"messages":[{"content":"Hel"}]}]}`+"\n")
		_, _ = io.WriteString(w, `{"choices":[{"messages":[{"content":"lo"}]}]}`+"\n")
	}))
	defer server.Close()

	transport := NewHTTPTransport(commonhttp.NewClient(5*time.Second), server.URL+"/", "/conversation", "secret")
	inv := NewInvoker(transport, logger.NewTestLogger(t))

	resp, err := inv.InvokeFull(context.Background(), sampleConversation(), "", "summarize this")
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, "r1", resp.ID)

	assert.Equal(t, "summarize this", got.SystemMessage)
	assert.Empty(t, got.SystemPreamble)
	assert.Nil(t, got.HistoryMetadata)
	assert.Len(t, got.Messages, 1)
}

func TestHTTPTransport_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewHTTPTransport(commonhttp.NewClient(5*time.Second), server.URL, "/conversation", "")
	_, err := transport.Stream(context.Background(), Request{Conversation: sampleConversation()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

// ==========================
// OpenAITransport
// ==========================

func TestOpenAITransport_EffectiveSystem(t *testing.T) {
	tr := NewOpenAITransport("sk-test", "", "gpt-4o-mini", "You are helpful.", nil)

	assert.Equal(t, "Plan first. You are helpful.", tr.effectiveSystem(Request{SystemPreamble: "Plan first. "}))
	assert.Equal(t, "Only this.", tr.effectiveSystem(Request{SystemPreamble: "ignored", SystemMessage: "Only this."}))
	assert.Equal(t, "You are helpful.", tr.effectiveSystem(Request{}))
}

func TestOpenAITransport_StreamsAsChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			_, _ = io.WriteString(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"`+part+`"}}]}`+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	tr := NewOpenAITransport("sk-test", server.URL, "gpt-4o-mini", "", server.Client())
	inv := NewInvoker(tr, logger.NewTestLogger(t))

	resp, err := inv.InvokeFull(context.Background(), sampleConversation(), "preamble ", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}
