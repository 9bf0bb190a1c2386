package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	commonhttp "deepsearch-workers/internal/common/http"
)

const bingSearchPath = "/v7.0/search"

// BingProvider queries the Bing Web Search v7 API.
type BingProvider struct {
	client   *commonhttp.Client
	endpoint string
	apiKey   string
	market   string
}

func NewBingProvider(client *commonhttp.Client, endpoint, apiKey, market string) *BingProvider {
	return &BingProvider{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		market:   market,
	}
}

type bingResponse struct {
	WebPages *struct {
		Value []Result `json:"value"`
	} `json:"webPages"`
}

func (b *BingProvider) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("mkt", b.market)

	resp, err := b.client.Get(ctx, b.endpoint+bingSearchPath+"?"+params.Encode(), map[string]string{
		"Ocp-Apim-Subscription-Key": b.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body bingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}
	// Bing omits webPages entirely when nothing matched.
	if body.WebPages == nil {
		return []Result{}, nil
	}
	return body.WebPages.Value, nil
}

var _ Provider = (*BingProvider)(nil)
