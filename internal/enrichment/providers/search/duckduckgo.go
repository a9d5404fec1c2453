package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/enrichment/providers"
)

const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoBackend scrapes the keyless HTML results page.
type DuckDuckGoBackend struct {
	endpoint string
	fetcher  httpclient.Fetcher
	timeout  time.Duration
}

func NewDuckDuckGoBackend(endpoint string, f httpclient.Fetcher, timeout time.Duration) *DuckDuckGoBackend {
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoURL
	}
	return &DuckDuckGoBackend{endpoint: endpoint, fetcher: f, timeout: timeout}
}

func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	target := fmt.Sprintf("%s?q=%s", b.endpoint, url.QueryEscape(query))
	resp, err := providers.Get(ctx, b.fetcher, providers.NameGenericSearch, target, httpclient.FetchOptions{
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml",
			"Accept-Language": "en-US,en;q=0.5",
		},
		Timeout: b.timeout,
	})
	if err != nil {
		return nil, err
	}
	return parseDuckDuckGo(resp.Body, limit)
}

func parseDuckDuckGo(body []byte, limit int) ([]Hit, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewProviderParseError(providers.NameGenericSearch, err)
	}

	var (
		hits    []Hit
		current *Hit
	)
	flush := func() {
		if current != nil && current.URL != "" && current.Title != "" {
			hits = append(hits, *current)
		}
		current = nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(hits) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			class := attr(n, "class")
			switch {
			case hasClass(class, "result__a"):
				flush()
				link := resolveRedirect(attr(n, "href"))
				current = &Hit{Title: textContent(n), URL: link, Source: hostOf(link)}
				return
			case hasClass(class, "result__snippet"):
				if current != nil {
					current.Snippet = textContent(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if limit <= 0 || len(hits) < limit {
		flush()
	}
	return hits, nil
}

// resolveRedirect unwraps "//duckduckgo.com/l/?uddg=<target>" links.
func resolveRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("uddg")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(classAttr, name string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == name {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var parts []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(parts, " ")
}
