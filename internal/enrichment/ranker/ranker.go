// Package ranker scores, deduplicates and orders result items from any mix
// of providers. Ranking is pure: the same items, query and options always
// produce the same order.
package ranker

import (
	"sort"
	"strings"
	"time"

	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
)

// Score component keys recorded in ResultItem.RawScoreComponents.
const (
	ComponentExactPhrase     = "exactPhrase"
	ComponentTitleTerms      = "titleTerms"
	ComponentSummaryTerms    = "summaryTerms"
	ComponentBodyTerms       = "bodyTerms"
	ComponentDomainRelevance = "domainRelevance"
	ComponentRecency         = "recency"
	ComponentSourceTrust     = "sourceTrust"
	ComponentCategory        = "category"
)

// componentOrder fixes the summation order so FinalScore is reproducible
// to the last bit.
var componentOrder = []string{
	ComponentExactPhrase,
	ComponentTitleTerms,
	ComponentSummaryTerms,
	ComponentBodyTerms,
	ComponentDomainRelevance,
	ComponentRecency,
	ComponentSourceTrust,
	ComponentCategory,
}

type Weights struct {
	ExactPhrase     float64
	TitleTerm       float64
	SummaryTerm     float64
	BodyTerm        float64
	DomainRelevance float64
	Recency         float64
	SourceTrust     float64
	CategoryMatch   float64
}

type Config struct {
	Weights  Weights
	MinScore float64
	// RecencyCutoff is the age beyond which an item earns no recency bonus.
	RecencyCutoff time.Duration
	// NearDuplicateThreshold is the title Jaccard similarity at or above
	// which two items are treated as the same story.
	NearDuplicateThreshold float64
	// SourceTrust maps lower-cased source names to a trust in [0, 1].
	SourceTrust  map[string]float64
	DefaultTrust float64
	// DomainTerms are the topical keywords counted for domain relevance.
	DomainTerms map[models.Domain][]string
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ExactPhrase:     100,
			TitleTerm:       3,
			SummaryTerm:     2,
			BodyTerm:        1,
			DomainRelevance: 2,
			Recency:         5,
			SourceTrust:     3,
			CategoryMatch:   0.5,
		},
		MinScore:               1.0,
		RecencyCutoff:          72 * time.Hour,
		NearDuplicateThreshold: 0.85,
		DefaultTrust:           0.3,
		DomainTerms:            DefaultDomainTerms(),
	}
}

// DefaultDomainTerms returns the built-in topical keywords per domain.
func DefaultDomainTerms() map[models.Domain][]string {
	return map[models.Domain][]string{
		models.DomainLocationTime: {
			"prayer", "prayers", "fajr", "sunrise", "dhuhr", "asr", "maghrib", "isha",
			"صلاة", "الصلاة", "مواقيت", "أذان", "الفجر", "المغرب",
		},
		models.DomainCrawledNews: {
			"news", "breaking", "report", "reports", "update", "announced",
			"أخبار", "عاجل", "خبر",
		},
		models.DomainGenericSearch: {
			"price", "prices", "market", "rate", "rates", "stock", "exchange",
			"سعر", "أسعار", "سوق",
		},
	}
}

// densityCap is the number of topical hits that earns the full domain
// relevance bonus.
const densityCap = 3

// Options are the per-call inputs besides items and query.
type Options struct {
	Domain models.Domain
	// Now anchors recency. Zero means time.Now().
	Now time.Time
}

type Ranker struct {
	cfg   Config
	trust map[string]float64
}

func New(cfg Config) *Ranker {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.RecencyCutoff <= 0 {
		cfg.RecencyCutoff = def.RecencyCutoff
	}
	if cfg.NearDuplicateThreshold <= 0 || cfg.NearDuplicateThreshold > 1 {
		cfg.NearDuplicateThreshold = def.NearDuplicateThreshold
	}
	if cfg.DomainTerms == nil {
		cfg.DomainTerms = def.DomainTerms
	}

	trust := make(map[string]float64, len(cfg.SourceTrust))
	for name, w := range cfg.SourceTrust {
		trust[strings.ToLower(strings.TrimSpace(name))] = clamp01(w)
	}
	return &Ranker{cfg: cfg, trust: trust}
}

type scored struct {
	item      models.ResultItem
	index     int
	exact     bool
	relevance float64
	recency   float64
}

// Rank scores items against q, drops those under MinScore, merges
// duplicates and returns the rest best first. Synthetic items always come
// after genuine ones, and among those an item carrying the whole query phrase
// always comes before one that only partially matches it. The input slice is
// not modified.
func (r *Ranker) Rank(items []models.ResultItem, q models.Query, opts Options) []models.ResultItem {
	if len(items) == 0 {
		return []models.ResultItem{}
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	qt := newQueryTerms(q)

	byID := make(map[string]int)
	candidates := make([]scored, 0, len(items))
	for i, in := range items {
		item := in.Clone()
		if item.ID == "" {
			item.AssignID()
		}
		s := r.score(item, qt, opts.Domain, now)
		s.index = i
		if s.item.FinalScore < r.cfg.MinScore {
			continue
		}
		if at, ok := byID[s.item.ID]; ok {
			if s.item.FinalScore > candidates[at].item.FinalScore {
				s.index = candidates[at].index
				candidates[at] = s
			}
			continue
		}
		byID[s.item.ID] = len(candidates)
		candidates = append(candidates, s)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	return r.collapseNearDuplicates(candidates)
}

func less(a, b scored) bool {
	if a.item.Synthetic != b.item.Synthetic {
		return !a.item.Synthetic
	}
	if a.exact != b.exact {
		return a.exact
	}
	if a.item.FinalScore != b.item.FinalScore {
		return a.item.FinalScore > b.item.FinalScore
	}
	if a.relevance != b.relevance {
		return a.relevance > b.relevance
	}
	if a.recency != b.recency {
		return a.recency > b.recency
	}
	return a.index < b.index
}

func (r *Ranker) collapseNearDuplicates(sorted []scored) []models.ResultItem {
	out := make([]models.ResultItem, 0, len(sorted))
	kept := make([][]string, 0, len(sorted))
	for _, s := range sorted {
		tokens := textnorm.Tokens(textnorm.Normalize(s.item.Title))
		dup := false
		if len(tokens) > 0 {
			for _, prev := range kept {
				if len(prev) > 0 && textnorm.Jaccard(tokens, prev) >= r.cfg.NearDuplicateThreshold {
					dup = true
					break
				}
			}
		}
		if dup {
			continue
		}
		kept = append(kept, tokens)
		out = append(out, s.item)
	}
	return out
}

func (r *Ranker) score(item models.ResultItem, qt queryTerms, domain models.Domain, now time.Time) scored {
	w := r.cfg.Weights
	title := textnorm.Analyze(item.Title)
	summary := textnorm.Analyze(item.Summary)
	body := textnorm.Analyze(item.Body)

	relevance := r.domainRelevance(domain, title, summary)
	recency := r.recency(item.PublishedAt, now)

	raw := map[string]float64{
		ComponentExactPhrase:     w.ExactPhrase * qt.phraseFraction(title, summary),
		ComponentTitleTerms:      w.TitleTerm * float64(qt.matches(title)),
		ComponentSummaryTerms:    w.SummaryTerm * float64(qt.matches(summary)),
		ComponentBodyTerms:       w.BodyTerm * float64(qt.matches(body)),
		ComponentDomainRelevance: w.DomainRelevance * relevance,
		ComponentRecency:         w.Recency * recency,
		ComponentSourceTrust:     w.SourceTrust * r.sourceTrust(item),
		ComponentCategory:        w.CategoryMatch * categoryMatch(item.Category, qt, domain),
	}

	item.RawScoreComponents = raw
	item.FinalScore = FinalScore(raw)
	return scored{
		item:      item,
		exact:     qt.fullPhrase(title) || qt.fullPhrase(summary),
		relevance: relevance,
		recency:   recency,
	}
}

// FinalScore sums score components in a fixed order.
func FinalScore(components map[string]float64) float64 {
	total := 0.0
	for _, k := range componentOrder {
		total += components[k]
	}
	return total
}

func (r *Ranker) domainRelevance(domain models.Domain, texts ...textnorm.Text) float64 {
	terms := r.cfg.DomainTerms[domain]
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		for _, t := range texts {
			if t.Contains(term) {
				hits++
				break
			}
		}
	}
	if hits >= densityCap {
		return 1
	}
	return float64(hits) / densityCap
}

// recency decays linearly from 1 at publication to 0 at the cutoff. Items
// dated in the future count as brand new.
func (r *Ranker) recency(published *time.Time, now time.Time) float64 {
	if published == nil {
		return 0
	}
	age := now.Sub(*published)
	if age < 0 {
		age = 0
	}
	if age >= r.cfg.RecencyCutoff {
		return 0
	}
	return 1 - float64(age)/float64(r.cfg.RecencyCutoff)
}

func (r *Ranker) sourceTrust(item models.ResultItem) float64 {
	if item.Synthetic {
		return 0
	}
	if w, ok := r.trust[strings.ToLower(strings.TrimSpace(item.SourceName))]; ok {
		return w
	}
	return clamp01(r.cfg.DefaultTrust)
}

func categoryMatch(category string, qt queryTerms, domain models.Domain) float64 {
	if category == "" {
		return 0
	}
	if strings.EqualFold(category, string(domain)) {
		return 1
	}
	if qt.matches(textnorm.Analyze(category)) > 0 {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
