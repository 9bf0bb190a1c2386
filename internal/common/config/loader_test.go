// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
apis:
  chat:
    base_url: http://chat.local
  web_search:
    api_key: bing-key
workers:
  deep-research:
    enabled: true
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ChatProviderBackend, cfg.APIs.Chat.Provider)
	assert.Equal(t, "/conversation", cfg.APIs.Chat.Path)
	assert.Equal(t, SearchProviderBing, cfg.APIs.WebSearch.Provider)
	assert.Equal(t, "https://api.bing.microsoft.com", cfg.APIs.WebSearch.BaseURL)
	assert.Equal(t, "en-US", cfg.APIs.WebSearch.Market)
	assert.Equal(t, 0, cfg.Research.MaxRounds)
	assert.Equal(t, 0, cfg.Research.FanoutLimit)
	assert.Equal(t, NotificationModeLocal, cfg.Notifications.Mode)
	assert.Equal(t, "research:progress:", cfg.Notifications.ChannelPrefix)
	assert.Equal(t, "json", cfg.Logging.Format)

	w := cfg.Workers["deep-research"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 300000, w.Timeout)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_CHAT_URL", "http://expanded.local")
	body := `
apis:
  chat:
    base_url: ${TEST_CHAT_URL}
  web_search:
    api_key: key
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "http://expanded.local", cfg.APIs.Chat.BaseURL)
}

func TestLoadFromFile_PromptOverrides(t *testing.T) {
	body := `
apis:
  chat:
    base_url: http://chat.local
  web_search:
    api_key: key
research:
  prompts:
    background_info_preamble: "Sources:\n\n"
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "Sources:\n\n", cfg.Research.Prompts.BackgroundInfoPreamble)
	assert.Empty(t, cfg.Research.Prompts.IdentifySearches)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "unknown chat provider",
			body: `
apis:
  chat:
    provider: carrier-pigeon
  web_search:
    api_key: key
`,
			wantErr: "apis.chat.provider",
		},
		{
			name: "openai needs a model",
			body: `
apis:
  chat:
    provider: openai
    api_key: sk-test
  web_search:
    api_key: key
`,
			wantErr: "apis.chat.model",
		},
		{
			name: "elasticsearch search needs an address",
			body: `
apis:
  chat:
    base_url: http://chat.local
  web_search:
    provider: elasticsearch
`,
			wantErr: "database.elasticsearch",
		},
		{
			name: "redis notifications need redis",
			body: minimalConfig + `
notifications:
  mode: redis
`,
			wantErr: "database.redis.address",
		},
		{
			name: "negative round cap",
			body: minimalConfig + `
research:
  max_rounds: -1
`,
			wantErr: "research.max_rounds",
		},
		{
			name: "sns without topic",
			body: minimalConfig + `
integrations:
  aws:
    sns:
      enabled: true
`,
			wantErr: "topic_arn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"deep-research": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "deep-research"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "deep-research").MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
	assert.Equal(t, 300000, GetWorkerConfig(cfg, "unknown").Timeout)
}
