// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"deepsearch-workers/internal/common/aws"
	"deepsearch-workers/internal/common/config"
	"deepsearch-workers/internal/common/database"
	commonhttp "deepsearch-workers/internal/common/http"
	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/fetch"
	"deepsearch-workers/internal/research/notify"
	"deepsearch-workers/internal/research/search"
	"deepsearch-workers/internal/research/store"
)

// Services holds everything a process needs to run research.
type Services struct {
	Orchestrator *research.Orchestrator
	Runs         *store.RunStore
	Redis        *database.RedisClient
	Postgres     *database.PostgresClient
	Elastic      *database.ElasticsearchClient

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// Build connects the backing stores named by cfg and assembles the
// orchestrator. local receives progress when notifications.mode is "local";
// in "redis" mode progress is published instead.
func Build(ctx context.Context, cfg *config.Config, local notify.Sink, observer research.Observer, log logger.Logger) (*Services, error) {
	s := &Services{}

	if needsRedis(cfg) {
		var rc *database.RedisClient
		err := RetryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return nil, err
		}
		s.Redis = rc
		s.closers = append(s.closers, rc.Close)
		log.Info("Redis connected successfully", nil)
	}

	if cfg.Research.ArchiveRuns {
		var pg *database.PostgresClient
		err := RetryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Postgres = pg
		s.closers = append(s.closers, pg.Close)

		s.Runs = store.NewRunStore(pg.DB)
		if err := s.Runs.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ensure research_runs schema: %w", err)
		}
		log.Info("PostgreSQL connected successfully", nil)
	}

	if cfg.APIs.WebSearch.Provider == config.SearchProviderElasticsearch {
		var es *database.ElasticsearchClient
		err := RetryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Elastic = es
		log.Info("Elasticsearch connected successfully", nil)
	}

	recorders := []research.Recorder{}
	if s.Runs != nil {
		recorders = append(recorders, s.Runs)
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			s.Close()
			return nil, err
		}
		recorders = append(recorders, aws.NewRunEventPublisher(snsClient, cfg.Integrations.AWS.SNS.TopicARN))
		log.Info("SNS run events enabled", map[string]interface{}{"topic": cfg.Integrations.AWS.SNS.TopicARN})
	}

	s.Orchestrator = research.NewOrchestrator(
		chat.NewInvoker(NewTransport(cfg.APIs.Chat), log),
		NewProvider(cfg, s, log),
		NewFetcher(cfg.Research, s, log),
		newSink(cfg.Notifications, local, s, log),
		research.Options{
			MaxRounds:   cfg.Research.MaxRounds,
			FanoutLimit: cfg.Research.FanoutLimit,
			Prompts:     PromptsFrom(cfg.Research.Prompts),
			Recorders:   recorders,
			Observer:    observer,
		},
		log,
	)
	return s, nil
}

// PromptsFrom maps configured overrides onto the research prompt set.
// Unset entries are filled with defaults by the orchestrator.
func PromptsFrom(pc config.PromptsConfig) research.Prompts {
	return research.Prompts{
		IdentifySearches:           pc.IdentifySearches,
		IdentifyAdditionalSearches: pc.IdentifyAdditionalSearches,
		GetURLsToBrowse:            pc.GetURLsToBrowse,
		IsBackgroundInfoSufficient: pc.IsBackgroundInfoSufficient,
		BackgroundInfoPreamble:     pc.BackgroundInfoPreamble,
		SearchErrorPreamble:        pc.SearchErrorPreamble,
		SummarizeURL:               pc.SummarizeURL,
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Research.CacheEnabled || cfg.Notifications.Mode == config.NotificationModeRedis
}

// NewTransport picks the chat transport for the configured provider.
func NewTransport(cfg config.ChatAPIConfig) chat.Transport {
	timeout := config.GetDuration(cfg.Timeout)
	if cfg.Provider == config.ChatProviderOpenAI {
		return chat.NewOpenAITransport(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.SystemPrompt, commonhttp.NewClient(timeout).StdClient())
	}
	return chat.NewHTTPTransport(commonhttp.NewClient(timeout), cfg.BaseURL, cfg.Path, cfg.APIKey)
}

// NewProvider picks the search provider and wraps it with the Redis cache
// when caching is on.
func NewProvider(cfg *config.Config, s *Services, log logger.Logger) search.Provider {
	ws := cfg.APIs.WebSearch
	var provider search.Provider
	if ws.Provider == config.SearchProviderElasticsearch && s.Elastic != nil {
		provider = search.NewElasticProvider(s.Elastic.Client, ws.Index, ws.MaxResults)
	} else {
		client := commonhttp.NewClient(config.GetDuration(ws.Timeout))
		provider = search.NewBingProvider(client, ws.BaseURL, ws.APIKey, ws.Market)
	}
	if cfg.Research.CacheEnabled && s.Redis != nil {
		ttl := time.Duration(cfg.Research.SearchCacheTTL) * time.Second
		provider = search.NewCachedProvider(provider, s.Redis.Client, ttl, log)
	}
	return provider
}

// NewFetcher builds the page fetcher, cached when caching is on.
func NewFetcher(cfg config.ResearchConfig, s *Services, log logger.Logger) fetch.Fetcher {
	client := commonhttp.NewClient(config.GetDuration(cfg.FetchTimeout), commonhttp.WithUserAgent(cfg.UserAgent))
	var fetcher fetch.Fetcher = fetch.NewHTTPFetcher(client, cfg.FetchMaxBytes, log)
	if cfg.CacheEnabled && s.Redis != nil {
		fetcher = fetch.NewCachedFetcher(fetcher, s.Redis.Client, time.Duration(cfg.PageCacheTTL)*time.Second, log)
	}
	return fetcher
}

func newSink(cfg config.NotificationConfig, local notify.Sink, s *Services, log logger.Logger) notify.Sink {
	if cfg.Mode == config.NotificationModeRedis && s.Redis != nil {
		return notify.NewRedisPublisher(s.Redis.Client, cfg.ChannelPrefix, log)
	}
	if local == nil {
		return notify.Discard{}
	}
	return local
}

// RetryWithBackoff attempts to execute a function with exponential backoff
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
