// Package composer turns ranked items into the source-attributed payload
// handed to the generation step, and renders it as a bounded text block.
package composer

import (
	"net/url"
	"time"

	"query-enrichment/internal/models"
)

const (
	// SyntheticOnlyNotice marks payloads built only from placeholder items.
	SyntheticOnlyNotice = "no live data reached: placeholder items only"
	// PartialSyntheticNotice marks payloads mixing live and placeholder items.
	PartialSyntheticNotice = "some sources unavailable: payload includes placeholder items"
)

type Config struct {
	TopN        map[models.Domain]int
	DefaultTopN int
	// GoodScore and ExcellentScore are average FinalScore thresholds over
	// genuine items.
	GoodScore      float64
	ExcellentScore float64
	// MinDiversity is the distinct-source share required for excellent.
	MinDiversity float64
}

func DefaultConfig() Config {
	return Config{
		TopN: map[models.Domain]int{
			models.DomainLocationTime:  8,
			models.DomainCrawledNews:   6,
			models.DomainGenericSearch: 5,
		},
		DefaultTopN:    5,
		GoodScore:      4,
		ExcellentScore: 8,
		MinDiversity:   0.5,
	}
}

type Composer struct {
	cfg Config
}

func New(cfg Config) *Composer {
	def := DefaultConfig()
	if cfg.TopN == nil {
		cfg.TopN = def.TopN
	}
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = def.DefaultTopN
	}
	if cfg.GoodScore <= 0 {
		cfg.GoodScore = def.GoodScore
	}
	if cfg.ExcellentScore <= 0 {
		cfg.ExcellentScore = def.ExcellentScore
	}
	if cfg.MinDiversity <= 0 {
		cfg.MinDiversity = def.MinDiversity
	}
	return &Composer{cfg: cfg}
}

// TopN is the number of items kept for domain.
func (c *Composer) TopN(domain models.Domain) int {
	if n, ok := c.cfg.TopN[domain]; ok && n > 0 {
		return n
	}
	return c.cfg.DefaultTopN
}

// Compose keeps the top items of ranked in order and attributes each
// source. ranked must already be in final order.
func (c *Composer) Compose(q models.Query, v models.Verdict, ranked []models.ResultItem, generatedAt time.Time) models.EnrichmentPayload {
	p := models.EnrichmentPayload{
		Query:       q,
		Domain:      v.Domain,
		Priority:    v.Priority,
		Items:       []models.ResultItem{},
		GeneratedAt: generatedAt.UTC(),
	}
	if !v.NeedsExternalData {
		p.Domain = models.DomainNone
	}

	n := c.TopN(v.Domain)
	if n > len(ranked) {
		n = len(ranked)
	}
	for _, item := range ranked[:n] {
		p.Items = append(p.Items, item.Clone())
	}

	p.Sources = attribute(p.Items)
	p.QualityLevel = c.Quality(p.Items)
	switch p.QualityLevel {
	case models.QualityNone:
		p.Notice = models.NoExternalDataNotice
	case models.QualityPoor:
		p.Notice = SyntheticOnlyNotice
	default:
		if hasSynthetic(p.Items) {
			p.Notice = PartialSyntheticNotice
		}
	}
	return p
}

// Quality grades items by count, genuine share, average score and source
// diversity. Any placeholder in items caps the grade at good.
func (c *Composer) Quality(items []models.ResultItem) models.QualityLevel {
	if len(items) == 0 {
		return models.QualityNone
	}

	genuine, synthetic := 0, 0
	total := 0.0
	sources := make(map[string]struct{})
	for _, item := range items {
		if item.Synthetic {
			synthetic++
			continue
		}
		genuine++
		total += item.FinalScore
		sources[item.SourceName] = struct{}{}
	}
	if genuine == 0 {
		return models.QualityPoor
	}

	avg := total / float64(genuine)
	diversity := float64(len(sources)) / float64(genuine)
	switch {
	case synthetic == 0 && genuine >= 3 && diversity >= c.cfg.MinDiversity && avg >= c.cfg.ExcellentScore:
		return models.QualityExcellent
	case genuine >= 2 && avg >= c.cfg.GoodScore:
		return models.QualityGood
	default:
		return models.QualityFair
	}
}

func hasSynthetic(items []models.ResultItem) bool {
	for _, item := range items {
		if item.Synthetic {
			return true
		}
	}
	return false
}

// attribute lists sources in order of first appearance.
func attribute(items []models.ResultItem) []models.SourceAttribution {
	var out []models.SourceAttribution
	index := make(map[string]int)
	for _, item := range items {
		name := item.SourceName
		if name == "" {
			name = hostOf(item.SourceURL)
		}
		if at, ok := index[name]; ok {
			out[at].ItemCount++
			continue
		}
		index[name] = len(out)
		out = append(out, models.SourceAttribution{
			Name:      name,
			URL:       siteOf(item.SourceURL),
			ItemCount: 1,
			Synthetic: item.Synthetic,
		})
	}
	return out
}

func siteOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
