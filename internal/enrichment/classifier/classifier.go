// Package classifier decides whether a query needs external data and which
// domain should serve it. Classification is pure: no I/O, no shared state.
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
)

type Config struct {
	// Threshold is the minimum winning score for needsExternalData.
	Threshold float64
	// DomainThreshold overrides Threshold per domain.
	DomainThreshold map[models.Domain]float64
	MediumThreshold float64
	HighThreshold   float64
	// HistoryWeight scales hits from the previous turn when the current
	// query has no domain-specific hit of its own.
	HistoryWeight float64
}

func DefaultConfig() Config {
	return Config{
		Threshold:       2.0,
		MediumThreshold: 3.0,
		HighThreshold:   5.0,
		HistoryWeight:   0.5,
	}
}

// Context is the conversational context a verdict may take into account.
type Context struct {
	SessionHistoryTail []string
	LocaleHint         string
}

type Classifier struct {
	cfg  Config
	sets []TermSet
}

func New(cfg Config, sets []TermSet) *Classifier {
	if len(sets) == 0 {
		sets = DefaultTermSets()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = DefaultConfig().MediumThreshold
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = DefaultConfig().HighThreshold
	}
	return &Classifier{cfg: cfg, sets: sets}
}

type tally struct {
	scores   map[models.Domain]float64
	specific map[models.Domain]bool
	hits     []string
	temporal bool
}

func newTally() *tally {
	return &tally{
		scores:   make(map[models.Domain]float64),
		specific: make(map[models.Domain]bool),
	}
}

func (c *Classifier) match(t *tally, text textnorm.Text, scale float64, specificOnly bool, label string) {
	for _, set := range c.sets {
		if specificOnly && !set.Specific {
			continue
		}
		for _, term := range set.Terms {
			if !text.Contains(term) {
				continue
			}
			for d, w := range set.Weights {
				t.scores[d] += w * scale
				if set.Specific && w > 0 {
					t.specific[d] = true
				}
			}
			if !set.Specific {
				t.temporal = true
			}
			t.hits = append(t.hits, label+set.Name+":"+term)
		}
	}
}

// Classify returns the verdict for q. The reason is always populated.
func (c *Classifier) Classify(q models.Query, cctx Context) models.Verdict {
	normalized := q.NormalizedText
	if normalized == "" {
		normalized = textnorm.Normalize(q.RawText)
	}
	text := textnorm.Analyze(normalized)
	if text.Empty() {
		return models.Verdict{
			NeedsExternalData: false,
			Domain:            models.DomainNone,
			Priority:          models.PriorityLow,
			Reason:            "empty query",
		}
	}

	t := newTally()
	c.match(t, text, 1, false, "")

	if len(t.specific) == 0 && len(cctx.SessionHistoryTail) > 0 && c.cfg.HistoryWeight > 0 {
		last := cctx.SessionHistoryTail[len(cctx.SessionHistoryTail)-1]
		c.match(t, textnorm.Analyze(last), c.cfg.HistoryWeight, true, "history/")
	}

	best, bestScore := models.DomainNone, 0.0
	for _, d := range models.DomainPriority {
		if t.scores[d] > bestScore {
			best, bestScore = d, t.scores[d]
		}
	}

	scores := make(map[models.Domain]float64, len(t.scores))
	for d, s := range t.scores {
		scores[d] = s
	}

	if best == models.DomainNone {
		return models.Verdict{
			NeedsExternalData: false,
			Domain:            models.DomainNone,
			Priority:          models.PriorityLow,
			Reason:            "no matching terms",
		}
	}

	if threshold := c.thresholdFor(best); bestScore < threshold {
		return models.Verdict{
			NeedsExternalData: false,
			Domain:            models.DomainNone,
			Priority:          models.PriorityLow,
			Reason: fmt.Sprintf("below threshold: best %s %.2f < %.2f (%s)",
				best, bestScore, threshold, strings.Join(t.hits, ", ")),
			Scores: scores,
		}
	}

	v := models.Verdict{
		NeedsExternalData: true,
		Domain:            best,
		Priority:          c.priority(bestScore),
		Scores:            scores,
	}

	if !t.specific[best] {
		// Only time-sensitivity words matched: fall back to the lowest
		// priority domain.
		v.Domain = models.DomainGenericSearch
		v.Ambiguous = true
		v.Reason = fmt.Sprintf("ambiguous: only time-sensitive terms matched, score %.2f (%s)",
			bestScore, strings.Join(t.hits, ", "))
		return v
	}

	v.Reason = fmt.Sprintf("matched %s with score %.2f (%s)", best, bestScore, strings.Join(t.hits, ", "))
	if runnerUp, score := runnerUp(t.scores, best); runnerUp != "" && score == bestScore {
		v.Reason += fmt.Sprintf("; tie with %s broken by domain priority", runnerUp)
	}
	return v
}

func (c *Classifier) thresholdFor(d models.Domain) float64 {
	if th, ok := c.cfg.DomainThreshold[d]; ok && th > 0 {
		return th
	}
	return c.cfg.Threshold
}

func (c *Classifier) priority(score float64) models.Priority {
	switch {
	case score >= c.cfg.HighThreshold:
		return models.PriorityHigh
	case score >= c.cfg.MediumThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func runnerUp(scores map[models.Domain]float64, best models.Domain) (models.Domain, float64) {
	domains := make([]models.Domain, 0, len(scores))
	for d := range scores {
		if d != best {
			domains = append(domains, d)
		}
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })

	var top models.Domain
	topScore := -1.0
	for _, d := range domains {
		if scores[d] > topScore {
			top, topScore = d, scores[d]
		}
	}
	return top, topScore
}
