package limiter

import (
	"context"

	httpclient "query-enrichment/internal/common/http"
)

// LimitedFetcher holds a limiter slot for the duration of every fetch.
type LimitedFetcher struct {
	next    httpclient.Fetcher
	limiter *Limiter
}

func WrapFetcher(next httpclient.Fetcher, l *Limiter) *LimitedFetcher {
	return &LimitedFetcher{next: next, limiter: l}
}

func (f *LimitedFetcher) Fetch(ctx context.Context, url string, opts httpclient.FetchOptions) (*httpclient.FetchResponse, error) {
	tok, err := f.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer f.limiter.Release(tok)
	return f.next.Fetch(ctx, url, opts)
}
