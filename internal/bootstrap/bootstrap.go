// Package bootstrap assembles the enrichment engine from configuration.
package bootstrap

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"query-enrichment/internal/common/config"
	"query-enrichment/internal/common/database"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/cache"
	"query-enrichment/internal/enrichment/composer"
	"query-enrichment/internal/enrichment/limiter"
	"query-enrichment/internal/enrichment/orchestrator"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/enrichment/providers/crawled"
	"query-enrichment/internal/enrichment/providers/search"
	"query-enrichment/internal/models"
	"query-enrichment/pkg/registry"
)

// Clients are the optional backing services. Nil members disable the
// components that depend on them.
type Clients struct {
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
	Redis         *database.RedisClient
	Tracer        trace.Tracer
	Recorder      orchestrator.Recorder
}

// Engine is everything the entrypoints need to serve enrich and classify.
type Engine struct {
	Orchestrator *orchestrator.Orchestrator
	Renderer     *composer.Renderer
	Limiter      *limiter.Limiter
	Cache        *cache.Cache
	Registry     *registry.SourceRegistry
	Providers    []string
	MaxTokens    int
}

// Build wires the engine. Misconfiguration is an error; missing optional
// services and an unavailable token encoding are logged and tolerated.
func Build(cfg *config.Config, clients Clients, log logger.Logger) (*Engine, error) {
	log = logger.Component(log, "bootstrap")
	e := cfg.Enrichment

	reg := registry.Default()
	if e.Crawled.RegistryFile != "" {
		loaded, err := registry.LoadRegistry(e.Crawled.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("load source registry: %w", err)
		}
		reg = loaded
	}

	cls, err := buildClassifier(e.Classifier)
	if err != nil {
		return nil, err
	}

	routing, err := Routing(e.Routing)
	if err != nil {
		return nil, err
	}

	lim := limiter.New(e.Limiter.Capacity)
	fetcher := limiter.WrapFetcher(
		httpclient.NewClient(config.GetDuration(e.Timeouts.Provider)).WithUserAgent(e.Crawled.UserAgent),
		lim,
	)

	var ps []providers.Provider
	var names []string
	if e.Providers[providers.NameLocationTime].Enabled {
		p, err := buildLocationTime(e, fetcher, clients, log)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if e.Providers[providers.NameCrawledContent].Enabled {
		ps = append(ps, crawled.New(crawled.Config{
			Sources:         reg.Enabled(),
			MaxItemsPerSeed: e.Crawled.MaxItemsPerSeed,
			ItemTimeout:     config.GetDuration(e.Timeouts.Item),
			UserAgent:       e.Crawled.UserAgent,
			Extractor:       crawled.NewExtractor(e.Crawled.Extractor),
		}, fetcher, log))
	}
	if e.Providers[providers.NameGenericSearch].Enabled {
		backends, err := buildSearchBackends(e, fetcher, lim, clients, log)
		if err != nil {
			return nil, err
		}
		ps = append(ps, search.New(search.Config{
			Backends:   backends,
			MaxResults: e.Search.MaxResults,
			Synthetic:  e.Search.Synthetic,
		}, log))
	}
	for _, p := range ps {
		names = append(names, p.Name())
	}

	tiers := []cache.Store{cache.NewMemoryStore(e.Cache.Capacity)}
	if clients.Redis != nil {
		tiers = append(tiers, cache.NewRedisStore(clients.Redis))
	}
	policy, err := buildPolicy(e.Cache)
	if err != nil {
		return nil, err
	}
	c := cache.New(cache.Config{Prefix: e.Cache.KeyPrefix, Policy: policy}, log, tiers...)

	rk, err := buildRanker(e.Ranker, reg)
	if err != nil {
		return nil, err
	}

	topN := make(map[models.Domain]int, len(e.Composer.TopN))
	for key, n := range e.Composer.TopN {
		d, ok := DomainFromKey(key)
		if !ok {
			return nil, fmt.Errorf("composer.top_n: unknown domain %q", key)
		}
		topN[d] = n
	}
	comp := composer.New(composer.Config{TopN: topN})

	counter, err := composer.NewTokenCounter(e.Composer.Encoding)
	if err != nil {
		log.Warn("Token encoding unavailable, using heuristic counter", map[string]interface{}{
			"error": err.Error(),
		})
	}

	orch := orchestrator.New(orchestrator.Config{
		Routing:         routing,
		ProviderTimeout: config.GetDuration(e.Timeouts.Provider),
		OverallTimeout:  config.GetDuration(e.Timeouts.Overall),
	}, orchestrator.Deps{
		Classifier: cls,
		Providers:  ps,
		Ranker:     rk,
		Composer:   comp,
		Cache:      c,
		Tracer:     clients.Tracer,
		Recorder:   clients.Recorder,
	}, log)

	log.Info("Enrichment engine ready", map[string]interface{}{
		"providers":     strings.Join(names, ","),
		"cacheTiers":    strings.Join(c.Tiers(), ","),
		"limiter":       lim.Capacity(),
		"sources":       len(reg.Enabled()),
		"searchBackend": strings.Join(e.Search.Backends, ","),
	})

	return &Engine{
		Orchestrator: orch,
		Renderer:     composer.NewRenderer(counter),
		Limiter:      lim,
		Cache:        c,
		Registry:     reg,
		Providers:    names,
		MaxTokens:    e.Composer.MaxTokens,
	}, nil
}

// DomainFromKey accepts either the configuration key ("crawled_news") or
// the domain name itself ("crawledNews").
func DomainFromKey(key string) (models.Domain, bool) {
	for _, d := range []models.Domain{
		models.DomainLocationTime,
		models.DomainCrawledNews,
		models.DomainGenericSearch,
		models.DomainNone,
	} {
		if key == string(d) || key == config.DomainKey(string(d)) {
			return d, true
		}
	}
	return "", false
}

// Routing converts the configured routing table.
func Routing(raw map[string][]string) (map[models.Domain][]string, error) {
	if len(raw) == 0 {
		return orchestrator.DefaultRouting(), nil
	}
	out := make(map[models.Domain][]string, len(raw))
	for key, names := range raw {
		d, ok := DomainFromKey(key)
		if !ok {
			return nil, fmt.Errorf("routing: unknown domain %q", key)
		}
		out[d] = append([]string(nil), names...)
	}
	return out, nil
}
