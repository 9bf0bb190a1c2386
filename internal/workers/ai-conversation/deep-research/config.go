// internal/workers/ai-conversation/deep-research/config.go
package deepresearch

import "time"

type Config struct {
	Timeout time.Duration
	// DegradeOnFailure completes the job with the search error preamble when
	// research fails outright, instead of failing the job.
	DegradeOnFailure bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          5 * time.Minute,
		DegradeOnFailure: true,
	}
}
