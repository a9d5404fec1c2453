package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"query-enrichment/internal/enrichment/textnorm"
)

// Well-known domain tags.
const (
	TagSynthetic = "synthetic"
	TagBreaking  = "breaking"
	TagToday     = "today"
	TagTomorrow  = "tomorrow"
)

// ResultItem is one normalized fact or article produced by a provider.
type ResultItem struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Summary            string             `json:"summary,omitempty"`
	Body               string             `json:"body,omitempty"`
	SourceURL          string             `json:"sourceUrl,omitempty"`
	SourceName         string             `json:"sourceName"`
	PublishedAt        *time.Time         `json:"publishedAt,omitempty"`
	Category           string             `json:"category,omitempty"`
	DomainTags         []string           `json:"domainTags,omitempty"`
	Synthetic          bool               `json:"synthetic,omitempty"`
	RawScoreComponents map[string]float64 `json:"rawScoreComponents,omitempty"`
	FinalScore         float64            `json:"finalScore"`
}

// NormalizeURL folds the case of scheme and host, drops the fragment and
// trailing slashes so that trivially different spellings of one URL compare
// equal. Path and query keep their case.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	return u.String()
}

// ItemID derives a stable identity from the source URL, or from the title
// when the item has no URL.
func ItemID(sourceURL, title string) string {
	basis := NormalizeURL(sourceURL)
	if basis == "" {
		basis = "title:" + textnorm.Normalize(title)
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:12])
}

// AssignID sets ID from SourceURL/Title.
func (r *ResultItem) AssignID() {
	r.ID = ItemID(r.SourceURL, r.Title)
}

// HasTag reports whether tag is present.
func (r *ResultItem) HasTag(tag string) bool {
	for _, t := range r.DomainTags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag inserts tag keeping DomainTags sorted and unique.
func (r *ResultItem) AddTag(tag string) {
	if tag == "" || r.HasTag(tag) {
		return
	}
	r.DomainTags = append(r.DomainTags, tag)
	sort.Strings(r.DomainTags)
}

// Clone returns a deep copy so ranking never mutates provider output.
func (r ResultItem) Clone() ResultItem {
	out := r
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		out.PublishedAt = &t
	}
	if r.DomainTags != nil {
		out.DomainTags = append([]string(nil), r.DomainTags...)
	}
	if r.RawScoreComponents != nil {
		out.RawScoreComponents = make(map[string]float64, len(r.RawScoreComponents))
		for k, v := range r.RawScoreComponents {
			out.RawScoreComponents[k] = v
		}
	}
	return out
}
