// Package fetch retrieves pages selected for summarization and reduces them
// to their paragraph text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"

	commonhttp "deepsearch-workers/internal/common/http"
	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Fetcher returns the visible paragraph text of a page. ok is false when the
// page could not be retrieved; that is not an error for the caller.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (text string, ok bool)
}

// HTTPFetcher downloads pages over HTTP and extracts <p> text.
type HTTPFetcher struct {
	client   *commonhttp.Client
	maxBytes int64
	logger   logger.Logger
}

// NewHTTPFetcher builds a fetcher. maxBytes <= 0 disables the body cap.
func NewHTTPFetcher(client *commonhttp.Client, maxBytes int64, log logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:   client,
		maxBytes: maxBytes,
		logger:   log.With(map[string]interface{}{"component": "fetcher"}),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	text, err := f.fetch(ctx, url)
	if err != nil {
		f.logger.Warn("page unavailable", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		metrics.ResearchPagesFetched.WithLabelValues("unavailable").Inc()
		return "", false
	}
	metrics.ResearchPagesFetched.WithLabelValues("ok").Inc()
	return text, true
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) (string, error) {
	resp, err := f.client.Get(ctx, url, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes)
	}
	// pages are decoded to UTF-8 from the declared or sniffed charset
	utf8Body, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return ExtractParagraphs(utf8Body)
}

// ExtractParagraphs returns the text of every <p> element in document order,
// joined by single spaces. A page with no paragraphs yields "".
func ExtractParagraphs(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			var b strings.Builder
			collectText(n, &b)
			paragraphs = append(paragraphs, b.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(paragraphs, " "), nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)
