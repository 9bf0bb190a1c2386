// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ChatProviderBackend = "backend"
	ChatProviderOpenAI  = "openai"

	SearchProviderBing          = "bing"
	SearchProviderElasticsearch = "elasticsearch"

	NotificationModeLocal = "local"
	NotificationModeRedis = "redis"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top, expands ${VAR} placeholders and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided by
// plain environment variables rather than config keys.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.APIs.Chat.APIKey, "CHAT_API_KEY")
	setIfEmpty(&cfg.APIs.Chat.BaseURL, "CHAT_BASE_URL")
	setIfEmpty(&cfg.APIs.WebSearch.APIKey, "BING_SEARCH_KEY")
	setIfEmpty(&cfg.APIs.WebSearch.BaseURL, "BING_SEARCH_ENDPOINT")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Integrations.AWS.SNS.TopicARN, "RESEARCH_EVENTS_TOPIC_ARN")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "deepsearch-workers"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8090"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 230000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	for key, w := range cfg.Workers {
		if w.MaxJobsActive == 0 {
			w.MaxJobsActive = 5
		}
		if w.Timeout == 0 {
			w.Timeout = 300000
		}
		if w.MaxRetries == 0 {
			w.MaxRetries = 3
		}
		cfg.Workers[key] = w
	}

	if cfg.APIs.Chat.Provider == "" {
		cfg.APIs.Chat.Provider = ChatProviderBackend
	}
	if cfg.APIs.Chat.Path == "" {
		cfg.APIs.Chat.Path = "/conversation"
	}
	if cfg.APIs.Chat.Timeout == 0 {
		cfg.APIs.Chat.Timeout = 120000
	}

	if cfg.APIs.WebSearch.Provider == "" {
		cfg.APIs.WebSearch.Provider = SearchProviderBing
	}
	if cfg.APIs.WebSearch.BaseURL == "" && cfg.APIs.WebSearch.Provider == SearchProviderBing {
		cfg.APIs.WebSearch.BaseURL = "https://api.bing.microsoft.com"
	}
	if cfg.APIs.WebSearch.Market == "" {
		cfg.APIs.WebSearch.Market = "en-US"
	}
	if cfg.APIs.WebSearch.Index == "" {
		cfg.APIs.WebSearch.Index = "knowledge"
	}
	if cfg.APIs.WebSearch.MaxResults == 0 {
		cfg.APIs.WebSearch.MaxResults = 10
	}
	if cfg.APIs.WebSearch.Timeout == 0 {
		cfg.APIs.WebSearch.Timeout = 10000
	}

	if cfg.Research.FetchTimeout == 0 {
		cfg.Research.FetchTimeout = 20000
	}
	if cfg.Research.FetchMaxBytes == 0 {
		cfg.Research.FetchMaxBytes = 10 << 20
	}
	if cfg.Research.UserAgent == "" {
		cfg.Research.UserAgent = "deepsearch-workers/1.0"
	}
	if cfg.Research.SearchCacheTTL == 0 {
		cfg.Research.SearchCacheTTL = 3600
	}
	if cfg.Research.PageCacheTTL == 0 {
		cfg.Research.PageCacheTTL = 86400
	}

	if cfg.Notifications.Mode == "" {
		cfg.Notifications.Mode = NotificationModeLocal
	}
	if cfg.Notifications.ChannelPrefix == "" {
		cfg.Notifications.ChannelPrefix = "research:progress:"
	}
	if cfg.Notifications.WriteTimeout == 0 {
		cfg.Notifications.WriteTimeout = 5000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.APIs.Chat.Provider {
	case ChatProviderBackend:
		if cfg.APIs.Chat.BaseURL == "" {
			return fmt.Errorf("apis.chat.base_url is required for the backend chat provider")
		}
	case ChatProviderOpenAI:
		if cfg.APIs.Chat.APIKey == "" {
			return fmt.Errorf("apis.chat.api_key is required for the openai chat provider")
		}
		if cfg.APIs.Chat.Model == "" {
			return fmt.Errorf("apis.chat.model is required for the openai chat provider")
		}
	default:
		return fmt.Errorf("apis.chat.provider %q is not supported", cfg.APIs.Chat.Provider)
	}

	switch cfg.APIs.WebSearch.Provider {
	case SearchProviderBing:
		if cfg.APIs.WebSearch.APIKey == "" {
			return fmt.Errorf("apis.web_search.api_key is required for bing")
		}
	case SearchProviderElasticsearch:
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch search provider")
		}
	default:
		return fmt.Errorf("apis.web_search.provider %q is not supported", cfg.APIs.WebSearch.Provider)
	}

	needsRedis := cfg.Research.CacheEnabled || cfg.Notifications.Mode == NotificationModeRedis
	if needsRedis && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when caching or redis notifications are enabled")
	}
	if cfg.Notifications.Mode != NotificationModeLocal && cfg.Notifications.Mode != NotificationModeRedis {
		return fmt.Errorf("notifications.mode %q is not supported", cfg.Notifications.Mode)
	}

	if cfg.Research.ArchiveRuns {
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required when research.archive_runs is set")
		}
	}
	if cfg.Research.MaxRounds < 0 {
		return fmt.Errorf("research.max_rounds must not be negative")
	}
	if cfg.Integrations.AWS.SNS.Enabled && cfg.Integrations.AWS.SNS.TopicARN == "" {
		return fmt.Errorf("integrations.aws.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if w, exists := cfg.Workers[workerName]; exists {
		return w
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       300000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if w, exists := cfg.Workers[workerName]; exists {
		return w.Enabled
	}
	return true
}
