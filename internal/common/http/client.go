// internal/common/http/client.go
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMaxBodyBytes = 2 << 20

// FetchOptions tunes a single GET.
type FetchOptions struct {
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// FetchResponse is the raw outcome of a GET that reached the server.
type FetchResponse struct {
	Status int
	Body   []byte
	URL    string
	Header http.Header
}

// OK reports a 2xx status.
func (r *FetchResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Fetcher is the outbound network primitive used by providers. Non-2xx
// statuses are returned as responses, only transport failures are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*FetchResponse, error)
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithUserAgent sets the default User-Agent sent by Fetch.
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

func (c *Client) Fetch(ctx context.Context, url string, opts FetchOptions) (*FetchResponse, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResponse{
		Status: resp.StatusCode,
		Body:   body,
		URL:    resp.Request.URL.String(),
		Header: resp.Header,
	}, nil
}
