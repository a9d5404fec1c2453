package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/enrichment/providers"
)

// APIBackend queries a JSON search API in the Custom Search shape:
//
//	GET {endpoint}?key=..&cx=..&q=..&num=..
//	{"items":[{"title","link","snippet","displayLink","pagemap":{"metatags":[{...}]}}]}
type APIBackend struct {
	endpoint string
	apiKey   string
	engineID string
	fetcher  httpclient.Fetcher
	timeout  time.Duration
}

func NewAPIBackend(endpoint, apiKey, engineID string, f httpclient.Fetcher, timeout time.Duration) *APIBackend {
	return &APIBackend{
		endpoint: endpoint,
		apiKey:   apiKey,
		engineID: engineID,
		fetcher:  f,
		timeout:  timeout,
	}
}

func (b *APIBackend) Name() string { return "api" }

func (b *APIBackend) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", query)
	if b.apiKey != "" {
		params.Set("key", b.apiKey)
	}
	if b.engineID != "" {
		params.Set("cx", b.engineID)
	}
	if limit > 0 {
		params.Set("num", strconv.Itoa(limit))
	}

	resp, err := providers.Get(ctx, b.fetcher, providers.NameGenericSearch, b.endpoint+"?"+params.Encode(),
		httpclient.FetchOptions{
			Headers: map[string]string{"Accept": "application/json"},
			Timeout: b.timeout,
		})
	if err != nil {
		return nil, err
	}
	return parseAPIResults(resp.Body, limit)
}

func parseAPIResults(body []byte, limit int) ([]Hit, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperrors.NewProviderParseError(providers.NameGenericSearch, fmt.Errorf("invalid JSON from search API"))
	}
	root := gjson.ParseBytes(body)
	if msg := root.Get("error.message"); msg.Exists() {
		return nil, apperrors.NewProviderParseError(providers.NameGenericSearch, fmt.Errorf("search API error: %s", msg.String()))
	}

	var hits []Hit
	root.Get("items").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("link").String()
		title := item.Get("title").String()
		if link == "" || title == "" {
			return true
		}
		hit := Hit{
			Title:   title,
			URL:     link,
			Snippet: item.Get("snippet").String(),
			Source:  item.Get("displayLink").String(),
		}
		if published, ok := item.Get("pagemap.metatags.0").Map()["article:published_time"]; ok {
			if t, err := time.Parse(time.RFC3339, published.String()); err == nil {
				t = t.UTC()
				hit.PublishedAt = &t
			}
		}
		hits = append(hits, hit)
		return limit <= 0 || len(hits) < limit
	})
	return hits, nil
}
