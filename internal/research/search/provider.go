// Package search runs web search queries and normalizes their results.
package search

import (
	"context"
	"errors"
	"fmt"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"
)

// ErrSearchFailed is returned for any transport failure of a search. It is
// distinct from an empty result list.
var ErrSearchFailed = errors.New("SEARCH_ERROR")

// Result is one search hit as returned by the engine, minus volatile fields.
type Result map[string]interface{}

// URL returns the result's url field, if any.
func (r Result) URL() string {
	s, _ := r["url"].(string)
	return s
}

// Provider runs a single query.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// volatileFields are dropped from every result before it is used.
var volatileFields = []string{
	"dateLastCrawled",
	"language",
	"richFacts",
	"isNavigational",
	"isFamilyFriendly",
	"displayUrl",
	"searchTags",
	"noCache",
	"cachedPageUrl",
	"datePublishedDisplayText",
	"datePublished",
	"id",
	"primaryImageOfPage",
	"thumbnailUrl",
}

// StripVolatileFields removes the volatile fields from each result in place
// and returns the same slice.
func StripVolatileFields(results []Result) []Result {
	for _, r := range results {
		for _, f := range volatileFields {
			delete(r, f)
		}
	}
	return results
}

// GetResults runs queries one after another and concatenates their stripped
// results. The first failing query aborts the rest and no partial results
// are returned.
func GetResults(ctx context.Context, p Provider, queries []string, log logger.Logger) ([]Result, error) {
	var all []Result
	for _, q := range queries {
		results, err := p.Search(ctx, q)
		if err != nil {
			metrics.ResearchSearchQueries.WithLabelValues("error").Inc()
			log.Error("search failed", map[string]interface{}{
				"query": q,
				"error": err.Error(),
			})
			if !errors.Is(err, ErrSearchFailed) {
				err = fmt.Errorf("%w: %v", ErrSearchFailed, err)
			}
			return nil, err
		}
		metrics.ResearchSearchQueries.WithLabelValues("ok").Inc()
		all = append(all, StripVolatileFields(results)...)
	}
	return all, nil
}
