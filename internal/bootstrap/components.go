package bootstrap

import (
	"fmt"
	"strings"

	"query-enrichment/internal/common/config"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/cache"
	"query-enrichment/internal/enrichment/classifier"
	"query-enrichment/internal/enrichment/limiter"
	"query-enrichment/internal/enrichment/places"
	"query-enrichment/internal/enrichment/providers/locationtime"
	"query-enrichment/internal/enrichment/providers/search"
	"query-enrichment/internal/enrichment/ranker"
	"query-enrichment/internal/models"
	"query-enrichment/pkg/registry"
)

func buildClassifier(c config.ClassifierConfig) (*classifier.Classifier, error) {
	var sets []classifier.TermSet
	if c.TermsFile != "" {
		loaded, err := classifier.LoadTermSets(c.TermsFile)
		if err != nil {
			return nil, fmt.Errorf("load classifier terms: %w", err)
		}
		sets = loaded
	}

	cfg := classifier.Config{
		Threshold:       c.Threshold,
		MediumThreshold: c.MediumThreshold,
		HighThreshold:   c.HighThreshold,
		HistoryWeight:   c.HistoryWeight,
	}
	if len(c.DomainThreshold) > 0 {
		cfg.DomainThreshold = make(map[models.Domain]float64, len(c.DomainThreshold))
		for key, th := range c.DomainThreshold {
			d, ok := DomainFromKey(key)
			if !ok {
				return nil, fmt.Errorf("classifier.domain_threshold: unknown domain %q", key)
			}
			cfg.DomainThreshold[d] = th
		}
	}
	return classifier.New(cfg, sets), nil
}

func buildLocationTime(e config.EnrichmentConfig, f httpclient.Fetcher, clients Clients, log logger.Logger) (*locationtime.Provider, error) {
	method, ok := locationtime.LookupMethod(e.LocationTime.Method)
	if !ok {
		return nil, fmt.Errorf("location_time.method: unknown calculation method %q", e.LocationTime.Method)
	}

	var fallback *models.Location
	if dl := e.LocationTime.DefaultLocation; dl.Name != "" || dl.Latitude != 0 || dl.Longitude != 0 {
		fallback = &models.Location{
			Name:      dl.Name,
			Latitude:  dl.Latitude,
			Longitude: dl.Longitude,
			Timezone:  dl.Timezone,
		}
	}

	var timings *locationtime.TimingsClient
	if e.LocationTime.APIEndpoint != "" {
		timings = locationtime.NewTimingsClient(e.LocationTime.APIEndpoint, f, config.GetDuration(e.Timeouts.Item))
	}

	dirs := []places.Directory{places.NewStaticDirectory(places.DefaultPlaces())}
	if clients.Postgres != nil {
		dirs = append(dirs, places.NewPostgresDirectory(clients.Postgres.DB, ""))
	}

	return locationtime.New(locationtime.Config{
		Method:          method,
		DefaultLocation: fallback,
	}, timings, places.NewChain(log, dirs...), log), nil
}

func buildSearchBackends(e config.EnrichmentConfig, f httpclient.Fetcher, lim *limiter.Limiter, clients Clients, log logger.Logger) ([]search.Backend, error) {
	timeout := config.GetDuration(e.Timeouts.Item)
	var out []search.Backend
	for _, name := range e.Search.Backends {
		switch strings.ToLower(name) {
		case "api":
			if e.Search.APIEndpoint == "" {
				log.Warn("Search API backend configured without endpoint, skipping", nil)
				continue
			}
			out = append(out, search.NewAPIBackend(e.Search.APIEndpoint, e.Search.APIKey, e.Search.EngineID, f, timeout))
		case "duckduckgo":
			out = append(out, search.NewDuckDuckGoBackend(e.Search.DuckDuckGoURL, f, timeout))
		case "elasticsearch":
			if clients.Elasticsearch == nil {
				log.Warn("Elasticsearch backend configured but no client, skipping", nil)
				continue
			}
			out = append(out, search.NewElasticsearchBackend(clients.Elasticsearch.Client, e.Search.Index, lim))
		default:
			return nil, fmt.Errorf("search.backends: unknown backend %q", name)
		}
	}
	return out, nil
}

func buildPolicy(c config.CacheConfig) (cache.Policy, error) {
	p := cache.DefaultPolicy()
	for key, ms := range c.TTL {
		d, ok := DomainFromKey(key)
		if !ok {
			return p, fmt.Errorf("cache.ttl: unknown domain %q", key)
		}
		p.BaseTTL[d] = config.GetDuration(ms)
	}
	if c.NegativeTTL > 0 {
		p.NegativeTTL = config.GetDuration(c.NegativeTTL)
	}
	if c.MinTTL > 0 {
		p.MinTTL = config.GetDuration(c.MinTTL)
	}
	if c.FreshWindow > 0 {
		p.FreshWindow = config.GetDuration(c.FreshWindow)
	}
	if c.FreshRatio > 0 {
		p.FreshRatio = c.FreshRatio
	}
	return p, nil
}

func buildRanker(r config.RankerConfig, reg *registry.SourceRegistry) (*ranker.Ranker, error) {
	cfg := ranker.DefaultConfig()
	w := r.Weights
	if w != (config.RankerWeights{}) {
		cfg.Weights = ranker.Weights{
			ExactPhrase:     w.ExactPhrase,
			TitleTerm:       w.TitleTerm,
			SummaryTerm:     w.SummaryTerm,
			BodyTerm:        w.BodyTerm,
			DomainRelevance: w.DomainRelevance,
			Recency:         w.Recency,
			SourceTrust:     w.SourceTrust,
			CategoryMatch:   w.CategoryMatch,
		}
	}
	if r.MinScore > 0 {
		cfg.MinScore = r.MinScore
	}
	if r.RecencyCutoff > 0 {
		cfg.RecencyCutoff = config.GetDuration(r.RecencyCutoff)
	}
	if r.NearDuplicateThreshold > 0 {
		if r.NearDuplicateThreshold > 1 {
			return nil, fmt.Errorf("ranker.near_duplicate_threshold must be at most 1")
		}
		cfg.NearDuplicateThreshold = r.NearDuplicateThreshold
	}

	// Registry trust first, explicit overrides last.
	trust := reg.TrustWeights()
	for name, t := range r.SourceTrust {
		trust[name] = t
	}
	cfg.SourceTrust = trust
	return ranker.New(cfg), nil
}
