package providers

import (
	"context"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
)

// Get fetches url through f and maps every failure onto the provider error
// taxonomy: transport and context errors, then non-2xx statuses.
func Get(ctx context.Context, f httpclient.Fetcher, provider, url string, opts httpclient.FetchOptions) (*httpclient.FetchResponse, error) {
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewProviderTimeoutError(provider, ctx.Err())
		}
		return nil, apperrors.FromContextError(provider, err)
	}
	if !resp.OK() {
		return nil, apperrors.NewProviderHTTPError(provider, resp.Status, url)
	}
	return resp, nil
}
