package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"query-enrichment/internal/models"
)

// TermSet is a curated list of terms whose hits add weight to one or more
// domains. Non-specific sets (time-sensitivity words) raise urgency but do
// not by themselves identify a domain.
type TermSet struct {
	Name     string                    `yaml:"name"`
	Specific bool                      `yaml:"specific"`
	Weights  map[models.Domain]float64 `yaml:"weights"`
	Terms    []string                  `yaml:"terms"`
}

type termFile struct {
	Sets []TermSet `yaml:"sets"`
}

// LoadTermSets reads term sets from a YAML file.
func LoadTermSets(path string) ([]TermSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term sets: %w", err)
	}
	return ParseTermSets(data)
}

// ParseTermSets decodes and validates YAML term sets.
func ParseTermSets(data []byte) ([]TermSet, error) {
	var f termFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse term sets: %w", err)
	}
	if len(f.Sets) == 0 {
		return nil, fmt.Errorf("term sets: no sets defined")
	}
	for _, s := range f.Sets {
		if s.Name == "" {
			return nil, fmt.Errorf("term sets: set without name")
		}
		for d := range s.Weights {
			if !d.Valid() || d == models.DomainNone {
				return nil, fmt.Errorf("term set %s: unknown domain %q", s.Name, d)
			}
		}
	}
	return f.Sets, nil
}

// DefaultTermSets returns the built-in English and Arabic term sets.
func DefaultTermSets() []TermSet {
	return []TermSet{
		{
			Name:     "time-sensitive",
			Specific: false,
			Weights: map[models.Domain]float64{
				models.DomainGenericSearch: 1.0,
				models.DomainCrawledNews:   1.0,
				models.DomainLocationTime:  0.5,
			},
			Terms: []string{
				"today", "tonight", "now", "right now", "current", "currently",
				"latest", "this week", "tomorrow", "live", "recent", "recently",
				"this morning", "this evening", "yesterday",
				"اليوم", "الان", "غدا", "حاليا", "الليلة", "امس", "هذا الاسبوع",
			},
		},
		{
			Name:     "location-prayer",
			Specific: true,
			Weights: map[models.Domain]float64{
				models.DomainLocationTime: 3.0,
			},
			Terms: []string{
				"prayer", "prayers", "prayer time", "prayer times", "salah", "salat",
				"namaz", "fajr", "dhuhr", "zuhr", "asr", "maghrib", "isha",
				"adhan", "azan", "athan", "sunrise", "sunset", "iftar", "suhoor",
				"sehri", "imsak",
				"صلاة", "الصلاة", "مواقيت", "الفجر", "الظهر", "العصر", "المغرب",
				"العشاء", "اذان", "الاذان", "الشروق", "الافطار", "السحور", "الامساك",
			},
		},
		{
			Name:     "news",
			Specific: true,
			Weights: map[models.Domain]float64{
				models.DomainCrawledNews: 3.0,
			},
			Terms: []string{
				"news", "breaking", "headline", "headlines", "announced",
				"announcement", "report", "reports", "happened", "update",
				"updates", "press release",
				"اخبار", "خبر", "عاجل", "نشرة", "مستجدات",
			},
		},
		{
			Name:     "price-market",
			Specific: true,
			Weights: map[models.Domain]float64{
				models.DomainGenericSearch: 2.5,
			},
			Terms: []string{
				"price", "prices", "cost", "rate", "exchange rate", "gold",
				"silver", "stock", "stocks", "market", "bitcoin", "crypto",
				"dollar", "euro", "currency", "weather", "forecast", "temperature",
				"score", "match result",
				"سعر", "اسعار", "الذهب", "الدولار", "البورصة", "الطقس", "العملة",
			},
		},
		{
			Name:     "lookup",
			Specific: true,
			Weights: map[models.Domain]float64{
				models.DomainGenericSearch: 1.5,
			},
			Terms: []string{
				"who won", "who is the", "search for", "look up", "lookup",
				"find out", "ابحث", "من فاز",
			},
		},
	}
}
