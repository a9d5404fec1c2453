// Package search implements the generic-search provider over an ordered
// list of search backends, with a synthetic fallback when none is reachable.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/models"
)

const (
	defaultMaxResults = 8

	// SyntheticSourceName is the attribution of every placeholder item.
	SyntheticSourceName = "synthetic"
)

type Config struct {
	Backends   []Backend
	MaxResults int
	// Synthetic enables placeholder items when no backend answers.
	Synthetic bool
	Retry     providers.RetryPolicy
}

type Provider struct {
	cfg Config
	log logger.Logger
}

func New(cfg Config, log logger.Logger) *Provider {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = providers.DefaultRetryPolicy()
	}
	return &Provider{
		cfg: cfg,
		log: logger.Component(log, providers.NameGenericSearch),
	}
}

func (p *Provider) Name() string { return providers.NameGenericSearch }

// Fetch tries each backend in order. The first backend that answers wins,
// even with zero hits; later backends are only consulted after a failure.
func (p *Provider) Fetch(ctx context.Context, q models.Query, params providers.Params) providers.Result {
	text := strings.TrimSpace(q.RawText)
	if text == "" {
		text = q.NormalizedText
	}

	var (
		errs     *multierror.Error
		attempts int
	)
	for _, backend := range p.cfg.Backends {
		var hits []Hit
		attempt, err := providers.RunAttempts(ctx, p.cfg.Retry, p.log, func(ctx context.Context) error {
			var err error
			hits, err = backend.Search(ctx, text, p.cfg.MaxResults)
			return err
		})
		attempts += attempt.Count()
		if err != nil {
			p.log.Warn("Search backend failed", map[string]interface{}{
				"backend":   backend.Name(),
				"errorCode": string(apperrors.GetErrorCode(err)),
				"error":     err.Error(),
			})
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.log.Debug("Search backend answered", map[string]interface{}{
			"backend": backend.Name(),
			"hits":    len(hits),
		})
		return providers.Succeeded(p.Name(), toItems(hits, backend.Name()), attempts)
	}

	if p.cfg.Synthetic && ctx.Err() == nil {
		p.log.Info("No search backend reachable, using synthetic results", map[string]interface{}{
			"backends": len(p.cfg.Backends),
		})
		return providers.Succeeded(p.Name(), Synthesize(q, params.Verdict.Domain), attempts)
	}

	if errs == nil {
		return providers.Failed(p.Name(), apperrors.NewProviderUnavailableError(p.Name(), "no search backend configured"), attempts)
	}
	// The last backend's error decides the kind; the rest were logged above.
	return providers.Failed(p.Name(), errs.Errors[len(errs.Errors)-1], attempts)
}

func toItems(hits []Hit, backend string) []models.ResultItem {
	items := make([]models.ResultItem, 0, len(hits))
	for _, h := range hits {
		source := h.Source
		if source == "" {
			source = backend
		}
		item := models.ResultItem{
			Title:       h.Title,
			Summary:     h.Snippet,
			SourceURL:   h.URL,
			SourceName:  source,
			PublishedAt: h.PublishedAt,
		}
		item.AssignID()
		items = append(items, item)
	}
	return items
}

// Synthesize builds the placeholder items for q. The output depends only on
// the query text, so repeated calls produce identical items.
func Synthesize(q models.Query, domain models.Domain) []models.ResultItem {
	subject := strings.TrimSpace(q.RawText)
	if subject == "" {
		subject = q.NormalizedText
	}
	if domain == "" || domain == models.DomainNone {
		domain = models.DomainGenericSearch
	}

	templates := []struct {
		title   string
		summary string
	}{
		{
			title:   fmt.Sprintf("Overview: %s", subject),
			summary: "No live search backend was reachable. Answer from general knowledge and say that current figures could not be verified.",
		},
		{
			title:   fmt.Sprintf("Latest updates: %s", subject),
			summary: "Placeholder for recent coverage. Suggest the user check an up-to-date source for current details.",
		},
	}

	items := make([]models.ResultItem, 0, len(templates))
	for _, tpl := range templates {
		item := models.ResultItem{
			Title:      tpl.title,
			Summary:    tpl.summary,
			SourceName: SyntheticSourceName,
			Category:   string(domain),
			Synthetic:  true,
		}
		item.AddTag(models.TagSynthetic)
		item.AssignID()
		items = append(items, item)
	}
	return items
}
