// Package crawled implements the crawled-content provider: it reads a fixed
// set of seed pages, follows their item links and extracts article facts.
package crawled

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
	"query-enrichment/pkg/registry"
)

const (
	defaultMaxItemsPerSeed = 5
	defaultItemTimeout     = 5 * time.Second
)

// breakingTerms mark an item as breaking news when found in its title or
// category.
var breakingTerms = []string{"breaking", "urgent", "عاجل"}

type Config struct {
	Sources         []registry.Source
	MaxItemsPerSeed int
	ItemTimeout     time.Duration
	Retry           providers.RetryPolicy
	UserAgent       string
	Extractor       Extractor
}

type Provider struct {
	cfg      Config
	fetcher  httpclient.Fetcher
	patterns map[string]*regexp.Regexp
	log      logger.Logger
}

func New(cfg Config, fetcher httpclient.Fetcher, log logger.Logger) *Provider {
	if cfg.MaxItemsPerSeed <= 0 {
		cfg.MaxItemsPerSeed = defaultMaxItemsPerSeed
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = providers.DefaultRetryPolicy()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = RegexExtractor{}
	}

	p := &Provider{
		cfg:      cfg,
		fetcher:  fetcher,
		patterns: make(map[string]*regexp.Regexp),
		log:      logger.Component(log, providers.NameCrawledContent),
	}
	for _, src := range cfg.Sources {
		if src.LinkPattern == "" {
			continue
		}
		re, err := regexp.Compile(src.LinkPattern)
		if err != nil {
			p.log.Warn("Ignoring invalid link pattern", map[string]interface{}{
				"source": src.ID,
				"error":  err.Error(),
			})
			continue
		}
		p.patterns[src.ID] = re
	}
	return p
}

func (p *Provider) Name() string { return providers.NameCrawledContent }

type seedOutcome struct {
	items []models.ResultItem
	err   error
}

func (p *Provider) Fetch(ctx context.Context, q models.Query, params providers.Params) providers.Result {
	if len(p.cfg.Sources) == 0 {
		return providers.Failed(p.Name(), apperrors.NewProviderUnavailableError(p.Name(), "no enabled seed sources"), 0)
	}

	attempts := atomic.NewInt64(0)
	outcomes := make([]seedOutcome, len(p.cfg.Sources))

	var g errgroup.Group
	for i, src := range p.cfg.Sources {
		g.Go(func() error {
			outcomes[i] = p.crawlSeed(ctx, src, attempts)
			return nil
		})
	}
	_ = g.Wait()

	var (
		items []models.ResultItem
		errs  *multierror.Error
		first error
	)
	for _, o := range outcomes {
		if o.err != nil {
			if first == nil {
				first = o.err
			}
			errs = multierror.Append(errs, o.err)
			continue
		}
		items = append(items, o.items...)
	}

	if errs != nil {
		p.log.Warn("Seed pages failed", map[string]interface{}{
			"failed": len(errs.Errors),
			"total":  len(p.cfg.Sources),
			"error":  errs.Error(),
		})
		if len(errs.Errors) == len(p.cfg.Sources) {
			return providers.Failed(p.Name(), first, int(attempts.Load()))
		}
	}
	return providers.Succeeded(p.Name(), items, int(attempts.Load()))
}

func (p *Provider) fetchBody(ctx context.Context, target string, attempts *atomic.Int64) ([]byte, error) {
	var body []byte
	attempt, err := providers.RunAttempts(ctx, p.cfg.Retry, p.log, func(ctx context.Context) error {
		resp, err := providers.Get(ctx, p.fetcher, p.Name(), target, httpclient.FetchOptions{
			Headers: map[string]string{"Accept": "text/html,application/xhtml+xml"},
		})
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	attempts.Add(int64(attempt.Count()))
	return body, err
}

func (p *Provider) crawlSeed(ctx context.Context, src registry.Source, attempts *atomic.Int64) seedOutcome {
	base, err := url.Parse(src.URL)
	if err != nil {
		return seedOutcome{err: apperrors.NewProviderParseError(p.Name(), err)}
	}

	body, err := p.fetchBody(ctx, src.URL, attempts)
	if err != nil {
		return seedOutcome{err: err}
	}

	links := p.filterLinks(src, p.cfg.Extractor.Links(base, body))
	slots := make([]*models.ResultItem, len(links))

	var g errgroup.Group
	for j, link := range links {
		g.Go(func() error {
			if item, ok := p.fetchItem(ctx, src, link, attempts); ok {
				slots[j] = &item
			}
			return nil
		})
	}
	_ = g.Wait()

	items := make([]models.ResultItem, 0, len(slots))
	for _, item := range slots {
		if item != nil {
			items = append(items, *item)
		}
	}
	p.log.Debug("Seed crawled", map[string]interface{}{
		"source": src.ID,
		"links":  len(links),
		"items":  len(items),
	})
	return seedOutcome{items: items}
}

func (p *Provider) filterLinks(src registry.Source, links []string) []string {
	re := p.patterns[src.ID]
	out := make([]string, 0, p.cfg.MaxItemsPerSeed)
	for _, link := range links {
		if re != nil && !re.MatchString(link) {
			continue
		}
		out = append(out, link)
		if len(out) == p.cfg.MaxItemsPerSeed {
			break
		}
	}
	return out
}

// fetchItem never fails the seed: an item that cannot be fetched or has no
// title is skipped.
func (p *Provider) fetchItem(ctx context.Context, src registry.Source, link string, attempts *atomic.Int64) (models.ResultItem, bool) {
	ictx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()

	body, err := p.fetchBody(ictx, link, attempts)
	if err != nil {
		p.log.Debug("Skipping item", map[string]interface{}{
			"url":       link,
			"errorCode": string(apperrors.GetErrorCode(err)),
		})
		return models.ResultItem{}, false
	}

	art := p.cfg.Extractor.Article(body)
	if art.Title == "" {
		return models.ResultItem{}, false
	}

	item := models.ResultItem{
		Title:       art.Title,
		Summary:     art.Summary,
		SourceURL:   link,
		SourceName:  src.Name,
		PublishedAt: art.PublishedAt,
		Category:    firstNonEmpty(art.Category, src.Category),
	}
	for _, tag := range src.Tags {
		item.AddTag(tag)
	}
	if isBreaking(art.Title, art.Category) {
		item.AddTag(models.TagBreaking)
	}
	item.AssignID()
	return item, true
}

func isBreaking(fields ...string) bool {
	for _, f := range fields {
		text := textnorm.Analyze(f)
		for _, term := range breakingTerms {
			if text.Contains(term) {
				return true
			}
		}
	}
	return false
}
