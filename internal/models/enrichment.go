// internal/models/enrichment.go
package models

import (
	"time"

	"query-enrichment/internal/enrichment/textnorm"
)

// Domain is the category of external data a query requires.
type Domain string

const (
	DomainLocationTime  Domain = "locationTime"
	DomainCrawledNews   Domain = "crawledNews"
	DomainGenericSearch Domain = "genericSearch"
	DomainNone          Domain = "none"
)

// DomainPriority lists routable domains from highest to lowest priority.
// Classifier ties resolve to the earlier entry.
var DomainPriority = []Domain{DomainLocationTime, DomainCrawledNews, DomainGenericSearch}

func (d Domain) Valid() bool {
	switch d {
	case DomainLocationTime, DomainCrawledNews, DomainGenericSearch, DomainNone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
	QualityNone      QualityLevel = "none"
)

var qualityRank = map[QualityLevel]int{
	QualityNone:      0,
	QualityPoor:      1,
	QualityFair:      2,
	QualityGood:      3,
	QualityExcellent: 4,
}

// AtLeast reports whether q is the same as or better than other.
func (q QualityLevel) AtLeast(other QualityLevel) bool {
	return qualityRank[q] >= qualityRank[other]
}

// Query is immutable once classified.
type Query struct {
	RawText        string `json:"rawText"`
	NormalizedText string `json:"normalizedText"`
	Locale         string `json:"locale,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
}

func NewQuery(raw, locale, sessionID string) Query {
	return Query{
		RawText:        raw,
		NormalizedText: textnorm.Normalize(raw),
		Locale:         locale,
		SessionID:      sessionID,
	}
}

// Verdict is produced once per query by the classifier.
type Verdict struct {
	NeedsExternalData bool               `json:"needsExternalData"`
	Domain            Domain             `json:"domain"`
	Priority          Priority           `json:"priority"`
	Reason            string             `json:"reason"`
	Ambiguous         bool               `json:"ambiguous,omitempty"`
	Scores            map[Domain]float64 `json:"scores,omitempty"`
}

// Location is a resolved place supplied by the caller or the gazetteer.
type Location struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// EnrichContext carries the optional caller context for one enrich call.
type EnrichContext struct {
	SessionHistoryTail []string  `json:"sessionHistoryTail,omitempty"`
	LocaleHint         string    `json:"localeHint,omitempty"`
	ResolvedLocation   *Location `json:"resolvedLocation,omitempty"`
	SessionID          string    `json:"sessionId,omitempty"`
}

// SourceAttribution summarizes one source contributing to a payload.
type SourceAttribution struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	ItemCount int    `json:"itemCount"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// ProviderError records a provider that contributed nothing.
type ProviderError struct {
	Provider  string `json:"provider"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message,omitempty"`
}

// EnrichmentPayload is the structured context handed to the generation step.
type EnrichmentPayload struct {
	Query          Query               `json:"query"`
	Domain         Domain              `json:"domain"`
	Priority       Priority            `json:"priority,omitempty"`
	Items          []ResultItem        `json:"items"`
	Sources        []SourceAttribution `json:"sources,omitempty"`
	GeneratedAt    time.Time           `json:"generatedAt"`
	QualityLevel   QualityLevel        `json:"qualityLevel"`
	Notice         string              `json:"notice,omitempty"`
	ProviderErrors []ProviderError     `json:"providerErrors,omitempty"`
}

// NoExternalDataNotice marks payloads the generation step must answer from
// its own knowledge.
const NoExternalDataNotice = "no external data available"

// Empty reports whether the payload carries no items.
func (p *EnrichmentPayload) Empty() bool {
	return p == nil || len(p.Items) == 0
}
