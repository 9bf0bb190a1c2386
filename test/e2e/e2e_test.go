// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepsearch-workers/internal/api"
	"deepsearch-workers/internal/bootstrap"
	"deepsearch-workers/internal/common/config"
	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/notify"
)

// ==========================
// Fake upstreams
// ==========================

type upstreams struct {
	bing       *httptest.Server
	pages      *httptest.Server
	chat       *httptest.Server
	bingHits   atomic.Int32
	chatCalls  atomic.Int32
	pageURL    string
	sufficient string
}

func newUpstreams(t *testing.T) *upstreams {
	u := &upstreams{sufficient: research.SufficientInformation}
	prompts := research.DefaultPrompts()

	u.pages = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><nav>menu</nav><p>Go 1.24 adds <b>generic</b> type aliases.</p></body></html>`))
	}))
	t.Cleanup(u.pages.Close)
	u.pageURL = u.pages.URL + "/go124"

	u.bing = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.bingHits.Add(1)
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "bing-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"webPages": map[string]interface{}{
				"value": []map[string]interface{}{{
					"id":      "https://api.bing.microsoft.com/api/v7/#WebPages.0",
					"name":    "Go 1.24 Release Notes",
					"url":     u.pageURL,
					"snippet": "Go 1.24 release notes",
				}},
			},
		})
	}))
	t.Cleanup(u.bing.Close)

	u.chat = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.chatCalls.Add(1)
		var req struct {
			SystemPreamble string `json:"system_preamble"`
			SystemMessage  string `json:"system_message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var reply string
		switch {
		case strings.HasPrefix(req.SystemPreamble, prompts.IdentifySearches):
			reply = `["go 1.24 release notes"]`
		case strings.HasPrefix(req.SystemMessage, prompts.GetURLsToBrowse):
			reply = `["` + u.pageURL + `"]`
		case strings.Contains(req.SystemMessage, "Page Content:"):
			reply = "Go 1.24 adds generic type aliases."
		case strings.HasPrefix(req.SystemPreamble, prompts.IsBackgroundInfoSufficient):
			reply = u.sufficient
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json-lines")
		half := len(reply) / 2
		for _, part := range []string{reply[:half], reply[half:]} {
			line, _ := json.Marshal(map[string]interface{}{
				"id":    "chatcmpl-1",
				"model": "test-model",
				"choices": []map[string]interface{}{{
					"messages": []map[string]string{{"role": "assistant", "content": part}},
				}},
			})
			_, _ = w.Write(append(line, '\n'))
		}
	}))
	t.Cleanup(u.chat.Close)

	return u
}

func testConfig(u *upstreams, redisAddr string) *config.Config {
	cfg := &config.Config{}
	cfg.APIs.Chat = config.ChatAPIConfig{
		Provider: config.ChatProviderBackend,
		BaseURL:  u.chat.URL,
		Path:     "/conversation",
		Timeout:  5000,
	}
	cfg.APIs.WebSearch = config.WebSearchAPIConfig{
		Provider: config.SearchProviderBing,
		BaseURL:  u.bing.URL,
		APIKey:   "bing-key",
		Market:   "en-US",
		Timeout:  5000,
	}
	cfg.Research = config.ResearchConfig{
		MaxRounds:      3,
		FetchTimeout:   5000,
		FetchMaxBytes:  1 << 20,
		UserAgent:      "deepsearch-e2e",
		CacheEnabled:   true,
		SearchCacheTTL: 60,
		PageCacheTTL:   60,
	}
	cfg.Database.Redis.Address = redisAddr
	cfg.Notifications = config.NotificationConfig{
		Mode:          config.NotificationModeRedis,
		ChannelPrefix: "research:progress:",
		WriteTimeout:  2000,
	}
	return cfg
}

// ==========================
// Research server end to end
// ==========================

const requestBody = `{
  "messages": [
    {"role": "user", "content": "hello"},
    {"role": "assistant", "content": "hi, how can I help?"},
    {"role": "user", "content": "what is new in go 1.24?"}
  ],
  "conversation_id": "conv-1",
  "page_instance_id": "page-1",
  "history_metadata": {},
  "system_prompt": "You are a helpful assistant."
}`

func TestResearchServer_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.NewTestLogger(t)
	u := newUpstreams(t)
	mr := miniredis.RunT(t)
	cfg := testConfig(u, mr.Addr())

	registry := notify.NewRegistry(log)
	services, err := bootstrap.Build(ctx, cfg, registry, nil, log)
	require.NoError(t, err)
	defer services.Close()

	relay := notify.NewRedisRelay(services.Redis.Client, cfg.Notifications.ChannelPrefix, registry, log)
	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	server := api.NewServer(services.Orchestrator, registry, nil, api.Options{
		RequestTimeout: 10 * time.Second,
		WriteTimeout:   time.Second,
	}, log)
	srv := httptest.NewServer(server.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/page-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return registry.Has("page-1") }, 2*time.Second, 10*time.Millisecond)

	// --- first run goes to the network ---
	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(requestBody))
	require.NoError(t, err)
	var out api.ResearchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, research.StatusEvidence, out.Status)
	assert.Equal(t, 1, out.Rounds)
	require.Len(t, out.Evidence, 1)
	assert.Equal(t, u.pageURL, out.Evidence[0].URL)
	assert.Equal(t, "Go 1.24 adds generic type aliases.", out.Evidence[0].Summary)

	prompts := research.DefaultPrompts()
	require.NotNil(t, out.Result)
	assert.True(t, strings.HasPrefix(*out.Result, prompts.BackgroundInfoPreamble))
	assert.True(t, strings.HasSuffix(*out.Result, "\n\nOriginal System Prompt:\n\n"))
	assert.Equal(t, *out.Result+"You are a helpful assistant.", out.SystemMessage)

	// plan, select, one summary, judge
	assert.Equal(t, int32(4), u.chatCalls.Load())
	assert.Equal(t, int32(1), u.bingHits.Load())

	want := []string{
		research.ProgressSearching,
		research.ProgressBrowsing,
		research.ProgressChecking,
		research.ProgressAnswering,
	}
	for _, msg := range want {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, msg, string(data))
	}

	// --- second run is served from the Redis caches ---
	resp, err = http.Post(srv.URL+"/research", "application/json", strings.NewReader(requestBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), u.bingHits.Load())
	assert.Equal(t, int32(8), u.chatCalls.Load())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !registry.Has("page-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestResearchServer_SearchFailureDegrades(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}

	log := logger.NewTestLogger(t)
	u := newUpstreams(t)
	cfg := testConfig(u, "")
	cfg.APIs.WebSearch.APIKey = "wrong-key"
	cfg.Research.CacheEnabled = false
	cfg.Notifications.Mode = config.NotificationModeLocal

	registry := notify.NewRegistry(log)
	services, err := bootstrap.Build(context.Background(), cfg, registry, nil, log)
	require.NoError(t, err)
	defer services.Close()

	srv := httptest.NewServer(api.NewServer(services.Orchestrator, registry, nil, api.Options{}, log).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(requestBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out api.ResearchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, research.StatusSearchError, out.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, research.SearchErrorMarker, *out.Result)
	assert.Equal(t, research.DefaultPrompts().SearchErrorPreamble+"You are a helpful assistant.", out.SystemMessage)
	assert.Empty(t, out.Evidence)
	// the planner ran, nothing after the failed search did
	assert.Equal(t, int32(1), u.chatCalls.Load())
}
