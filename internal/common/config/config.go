// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Research      ResearchConfig          `mapstructure:"research"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures cmd/research-server.
type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	MetricsAddress string   `mapstructure:"metrics_address"`
	ReadTimeout    int      `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int      `mapstructure:"request_timeout"` // milliseconds, whole research run
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the URL field or the first address.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Specific Configuration Sections ---

// APIsConfig holds the chat and search transports.
type APIsConfig struct {
	Chat      ChatAPIConfig      `mapstructure:"chat"`
	WebSearch WebSearchAPIConfig `mapstructure:"web_search"`
}

// ChatAPIConfig selects the chat transport. provider "backend" posts the
// conversation to the chat backend and reads NDJSON; "openai" streams from an
// OpenAI-compatible endpoint.
type ChatAPIConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	Path         string `mapstructure:"path"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
}

// WebSearchAPIConfig selects the search provider: "bing" or "elasticsearch".
type WebSearchAPIConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Market     string `mapstructure:"market"`
	Index      string `mapstructure:"index"`
	MaxResults int    `mapstructure:"max_results"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// ResearchConfig tunes the research loop.
type ResearchConfig struct {
	MaxRounds      int    `mapstructure:"max_rounds"`    // 0 = unbounded
	FanoutLimit    int    `mapstructure:"fanout_limit"`  // 0 = unbounded
	FetchTimeout   int    `mapstructure:"fetch_timeout"` // milliseconds
	FetchMaxBytes  int64  `mapstructure:"fetch_max_bytes"`
	UserAgent      string `mapstructure:"user_agent"`
	CacheEnabled   bool   `mapstructure:"cache_enabled"`
	SearchCacheTTL int    `mapstructure:"search_cache_ttl"` // seconds
	PageCacheTTL   int    `mapstructure:"page_cache_ttl"`   // seconds
	ArchiveRuns    bool   `mapstructure:"archive_runs"`

	Prompts PromptsConfig `mapstructure:"prompts"`
}

// PromptsConfig overrides the built-in research prompts. Empty fields keep
// the defaults.
type PromptsConfig struct {
	IdentifySearches           string `mapstructure:"identify_searches"`
	IdentifyAdditionalSearches string `mapstructure:"identify_additional_searches"`
	GetURLsToBrowse            string `mapstructure:"get_urls_to_browse"`
	IsBackgroundInfoSufficient string `mapstructure:"is_background_info_sufficient"`
	BackgroundInfoPreamble     string `mapstructure:"background_info_preamble"`
	SearchErrorPreamble        string `mapstructure:"search_error_preamble"`
	SummarizeURL               string `mapstructure:"summarize_url"`
}

// NotificationConfig selects how progress reaches live sessions. mode
// "local" writes to the in-process registry; "redis" publishes to Redis so
// a research-server holding the WebSocket can relay it.
type NotificationConfig struct {
	Mode          string `mapstructure:"mode"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	WriteTimeout  int    `mapstructure:"write_timeout"` // milliseconds
}

// IntegrationConfig holds optional cloud integrations.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SNS    struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export to Jaeger.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
