package search

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Hit is one result as returned by a backend, before normalization.
type Hit struct {
	Title       string
	URL         string
	Snippet     string
	Source      string
	PublishedAt *time.Time
}

// Backend is a single search engine behind the generic-search provider.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

// hostOf returns the host of raw without a leading "www.".
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
