package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/enrichment/limiter"
	"query-enrichment/internal/enrichment/providers"
)

// ElasticsearchBackend searches a local article index. Documents carry
// title, summary, body, url, source_name and published_at.
type ElasticsearchBackend struct {
	client *elasticsearch.Client
	index  string
	gate   *limiter.Limiter
}

// NewElasticsearchBackend builds the backend. gate may be nil; when set,
// every search holds one of its slots.
func NewElasticsearchBackend(client *elasticsearch.Client, index string, gate *limiter.Limiter) *ElasticsearchBackend {
	if index == "" {
		index = "articles"
	}
	return &ElasticsearchBackend{client: client, index: index, gate: gate}
}

func (b *ElasticsearchBackend) Name() string { return "elasticsearch" }

func (b *ElasticsearchBackend) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if b.gate == nil {
		return b.search(ctx, query, limit)
	}
	var hits []Hit
	err := b.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		hits, err = b.search(ctx, query, limit)
		return err
	})
	if err != nil {
		if _, ok := apperrors.AsStandardError(err); !ok {
			return nil, apperrors.FromContextError(providers.NameGenericSearch, err)
		}
	}
	return hits, err
}

func (b *ElasticsearchBackend) search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^3", "summary^2", "body"},
			},
		},
		"size":    limit,
		"_source": []string{"title", "summary", "url", "source_name", "published_at"},
	}
	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	req := esapi.SearchRequest{
		Index: []string{b.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return nil, apperrors.FromContextError(providers.NameGenericSearch, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewProviderHTTPError(providers.NameGenericSearch, res.StatusCode, "elasticsearch:"+b.index)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.NewProviderTransportError(providers.NameGenericSearch, err)
	}
	return parseESHits(raw)
}

func parseESHits(raw []byte) ([]Hit, error) {
	if !gjson.ValidBytes(raw) {
		return nil, apperrors.NewProviderParseError(providers.NameGenericSearch, fmt.Errorf("invalid JSON from elasticsearch"))
	}
	var hits []Hit
	gjson.GetBytes(raw, "hits.hits").ForEach(func(_, h gjson.Result) bool {
		src := h.Get("_source")
		hit := Hit{
			Title:   src.Get("title").String(),
			URL:     src.Get("url").String(),
			Snippet: src.Get("summary").String(),
			Source:  src.Get("source_name").String(),
		}
		if hit.Title == "" {
			return true
		}
		if hit.Source == "" {
			hit.Source = hostOf(hit.URL)
		}
		if p := src.Get("published_at"); p.Exists() {
			if t, err := time.Parse(time.RFC3339, p.String()); err == nil {
				t = t.UTC()
				hit.PublishedAt = &t
			}
		}
		hits = append(hits, hit)
		return true
	})
	return hits, nil
}
