package crawled

import (
	"bytes"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Article is what an extractor recovers from one item page. Empty fields
// mean the page did not say.
type Article struct {
	Title       string
	Summary     string
	PublishedAt *time.Time
	Category    string
}

// Extractor is a parsing strategy for seed and item pages.
type Extractor interface {
	Name() string
	// Links returns absolute item links found on a seed page, in page order.
	Links(base *url.URL, body []byte) []string
	Article(body []byte) Article
}

// NewExtractor returns the named strategy: "regex" (default) or "goquery".
func NewExtractor(name string) Extractor {
	if strings.EqualFold(name, "goquery") {
		return GoqueryExtractor{}
	}
	return RegexExtractor{}
}

var (
	anchorExpr = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	metaExpr   = regexp.MustCompile(`(?is)<meta\b[^>]*>`)
	attrExpr   = regexp.MustCompile(`(?is)([a-z_:.-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	titleExpr  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Expr     = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	paraExpr   = regexp.MustCompile(`(?is)<p(?:\s[^>]*)?>(.*?)</p>`)
	timeExpr   = regexp.MustCompile(`(?is)<time\b[^>]*?\bdatetime\s*=\s*["']([^"']+)["']`)
	ldDateExpr = regexp.MustCompile(`"datePublished"\s*:\s*"([^"]+)"`)
	ldSectExpr = regexp.MustCompile(`"articleSection"\s*:\s*"([^"]+)"`)
	tagExpr    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceExpr  = regexp.MustCompile(`\s+`)
	scriptExpr = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
)

// RegexExtractor matches patterns against raw markup and tolerates broken
// HTML.
type RegexExtractor struct{}

func (RegexExtractor) Name() string { return "regex" }

func (RegexExtractor) Links(base *url.URL, body []byte) []string {
	var hrefs []string
	for _, m := range anchorExpr.FindAllSubmatch(body, -1) {
		for _, g := range m[1:] {
			if len(g) > 0 {
				hrefs = append(hrefs, string(g))
				break
			}
		}
	}
	return resolveLinks(base, hrefs)
}

func (RegexExtractor) Article(body []byte) Article {
	meta := metaTags(body)
	a := Article{}

	// Most specific markup first, generic fallbacks last.
	a.Title = firstNonEmpty(
		meta["og:title"],
		meta["twitter:title"],
		firstGroup(h1Expr, body),
		firstGroup(titleExpr, body),
	)
	a.Summary = firstNonEmpty(
		meta["og:description"],
		meta["twitter:description"],
		meta["description"],
		firstGroup(paraExpr, scriptExpr.ReplaceAll(body, nil)),
	)
	a.PublishedAt = parseTime(firstNonEmpty(
		meta["article:published_time"],
		firstGroup(ldDateExpr, body),
		firstGroup(timeExpr, body),
		meta["date"],
	))
	a.Category = firstNonEmpty(
		meta["article:section"],
		firstGroup(ldSectExpr, body),
	)
	return a
}

// metaTags maps each meta tag's property or name (lower-cased) to its
// content. The first occurrence wins.
func metaTags(body []byte) map[string]string {
	out := make(map[string]string)
	for _, tag := range metaExpr.FindAll(body, -1) {
		attrs := make(map[string]string)
		for _, m := range attrExpr.FindAllSubmatch(tag, -1) {
			val := string(m[2])
			if len(m[3]) > 0 {
				val = string(m[3])
			}
			attrs[strings.ToLower(string(m[1]))] = val
		}
		key := attrs["property"]
		if key == "" {
			key = attrs["name"]
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = cleanText(attrs["content"])
		}
	}
	return out
}

func firstGroup(expr *regexp.Regexp, body []byte) string {
	m := expr.FindSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return cleanText(string(m[1]))
}

// GoqueryExtractor parses the DOM. It is slower but follows nested markup
// the regex strategy cannot.
type GoqueryExtractor struct{}

func (GoqueryExtractor) Name() string { return "goquery" }

func (GoqueryExtractor) Links(base *url.URL, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return resolveLinks(base, hrefs)
}

func (GoqueryExtractor) Article(body []byte) Article {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Article{}
	}
	meta := func(key string) string {
		sel := doc.Find(`meta[property="` + key + `"]`).First()
		if sel.Length() == 0 {
			sel = doc.Find(`meta[name="` + key + `"]`).First()
		}
		return cleanText(sel.AttrOr("content", ""))
	}
	text := func(selector string) string {
		return cleanText(doc.Find(selector).First().Text())
	}

	a := Article{
		Title:    firstNonEmpty(meta("og:title"), meta("twitter:title"), text("h1"), text("title")),
		Summary:  firstNonEmpty(meta("og:description"), meta("twitter:description"), meta("description"), text("p")),
		Category: meta("article:section"),
	}
	published, _ := doc.Find("time[datetime]").First().Attr("datetime")
	a.PublishedAt = parseTime(firstNonEmpty(meta("article:published_time"), published, meta("date")))
	return a
}

// resolveLinks makes hrefs absolute against base, keeps same-host http(s)
// links that are not the seed page itself, and drops duplicates.
func resolveLinks(base *url.URL, hrefs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range hrefs {
		raw = strings.TrimSpace(html.UnescapeString(raw))
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(strings.ToLower(raw), "javascript:") ||
			strings.HasPrefix(strings.ToLower(raw), "mailto:") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
			continue
		}
		if strings.TrimRight(abs.Path, "/") == strings.TrimRight(base.Path, "/") && abs.RawQuery == base.RawQuery {
			continue
		}
		s := abs.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func cleanText(s string) string {
	s = tagExpr.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceExpr.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
