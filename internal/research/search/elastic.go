package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticProvider searches an internal Elasticsearch index of documents that
// carry at least name, url and snippet fields.
type ElasticProvider struct {
	client *elasticsearch.Client
	index  string
	size   int
}

func NewElasticProvider(client *elasticsearch.Client, index string, size int) *ElasticProvider {
	if size <= 0 {
		size = 10
	}
	return &ElasticProvider{client: client, index: index, size: size}
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source Result `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticProvider) buildQuery(query string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name^3", "snippet^2", "content"},
				"type":   "best_fields",
			},
		},
	}
}

func (e *ElasticProvider) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(e.buildQuery(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	size := e.size
	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	results := make([]Result, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Source == nil {
			continue
		}
		results = append(results, hit.Source)
	}
	return results, nil
}

var _ Provider = (*ElasticProvider)(nil)
