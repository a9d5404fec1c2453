// Package orchestrator implements enrich: classify, consult the cache, fan
// out to the routed providers under the limiter, rank, store and compose.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/common/metrics"
	"query-enrichment/internal/enrichment/cache"
	"query-enrichment/internal/enrichment/classifier"
	"query-enrichment/internal/enrichment/composer"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/enrichment/ranker"
	"query-enrichment/internal/models"
)

const (
	DefaultProviderTimeout = 15 * time.Second
	DefaultOverallTimeout  = 20 * time.Second
)

// DefaultRouting maps each domain to the providers consulted for it.
func DefaultRouting() map[models.Domain][]string {
	return map[models.Domain][]string{
		models.DomainLocationTime:  {providers.NameLocationTime},
		models.DomainCrawledNews:   {providers.NameCrawledContent, providers.NameGenericSearch},
		models.DomainGenericSearch: {providers.NameGenericSearch},
	}
}

type Config struct {
	Routing         map[models.Domain][]string
	ProviderTimeout time.Duration
	OverallTimeout  time.Duration
}

// Recorder receives one observation per enrich call.
type Recorder interface {
	RecordEnrich(ctx context.Context, domain, quality string, duration time.Duration)
}

// Deps are the collaborators of an Orchestrator. Cache, Tracer and
// Recorder are optional.
type Deps struct {
	Classifier *classifier.Classifier
	Providers  []providers.Provider
	Ranker     *ranker.Ranker
	Composer   *composer.Composer
	Cache      *cache.Cache
	Tracer     trace.Tracer
	Recorder   Recorder
}

type Orchestrator struct {
	cfg        Config
	classifier *classifier.Classifier
	providers  map[string]providers.Provider
	ranker     *ranker.Ranker
	composer   *composer.Composer
	cache      *cache.Cache
	tracer     trace.Tracer
	recorder   Recorder
	now        func() time.Time
	log        logger.Logger
}

func New(cfg Config, deps Deps, log logger.Logger) *Orchestrator {
	if cfg.Routing == nil {
		cfg.Routing = DefaultRouting()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultOverallTimeout
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(classifier.DefaultConfig(), nil)
	}
	if deps.Ranker == nil {
		deps.Ranker = ranker.New(ranker.DefaultConfig())
	}
	if deps.Composer == nil {
		deps.Composer = composer.New(composer.DefaultConfig())
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("orchestrator")
	}

	byName := make(map[string]providers.Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}

	return &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		providers:  byName,
		ranker:     deps.Ranker,
		composer:   deps.Composer,
		cache:      deps.Cache,
		tracer:     deps.Tracer,
		recorder:   deps.Recorder,
		now:        time.Now,
		log:        logger.Component(log, "orchestrator"),
	}
}

// WithClock replaces the wall clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Classify runs the classifier alone.
func (o *Orchestrator) Classify(ctx context.Context, raw string, ec models.EnrichContext) (models.Query, models.Verdict) {
	_, span := o.tracer.Start(ctx, "classify")
	defer span.End()

	q := models.NewQuery(raw, ec.LocaleHint, ec.SessionID)
	v := o.classifier.Classify(q, classifier.Context{
		SessionHistoryTail: ec.SessionHistoryTail,
		LocaleHint:         ec.LocaleHint,
	})
	metrics.ClassifierVerdicts.WithLabelValues(string(v.Domain), string(v.Priority)).Inc()
	span.SetAttributes(
		attribute.String("domain", string(v.Domain)),
		attribute.Bool("needs_external_data", v.NeedsExternalData),
	)
	fields := map[string]interface{}{
		"domain":   string(v.Domain),
		"priority": string(v.Priority),
		"needs":    v.NeedsExternalData,
		"reason":   v.Reason,
	}
	if v.Ambiguous {
		ambiguous := apperrors.NewClassificationAmbiguousError(v.Reason)
		fields["errorCode"] = string(ambiguous.Code)
		o.log.Info("Query classification ambiguous", fields)
		return q, v
	}
	o.log.Debug("Query classified", fields)
	return q, v
}

// Route lists the providers consulted for d, in routing order.
func (o *Orchestrator) Route(d models.Domain) []string {
	names := o.cfg.Routing[d]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Enrich always returns a well-formed payload. Provider failures and
// timeouts surface only through QualityLevel, Notice and ProviderErrors.
func (o *Orchestrator) Enrich(ctx context.Context, raw string, ec models.EnrichContext) models.EnrichmentPayload {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "enrich")
	defer span.End()

	q, v := o.Classify(ctx, raw, ec)

	var payload models.EnrichmentPayload
	var cached bool
	if !v.NeedsExternalData {
		payload, cached = o.negative(ctx, q, v)
	} else {
		payload, cached = o.positive(ctx, q, v, ec)
	}

	elapsed := time.Since(start)
	metrics.EnrichRequests.WithLabelValues(string(v.Domain), string(payload.QualityLevel)).Inc()
	metrics.EnrichDuration.WithLabelValues(string(v.Domain)).Observe(elapsed.Seconds())
	if o.recorder != nil {
		o.recorder.RecordEnrich(ctx, string(v.Domain), string(payload.QualityLevel), elapsed)
	}
	span.SetAttributes(
		attribute.String("quality", string(payload.QualityLevel)),
		attribute.Int("items", len(payload.Items)),
		attribute.Bool("cached", cached),
	)

	o.log.Info("Enrichment completed", map[string]interface{}{
		"domain":     string(v.Domain),
		"quality":    string(payload.QualityLevel),
		"items":      len(payload.Items),
		"cached":     cached,
		"durationMs": elapsed.Milliseconds(),
	})
	return payload
}

func (o *Orchestrator) negative(ctx context.Context, q models.Query, v models.Verdict) (models.EnrichmentPayload, bool) {
	key := ""
	if o.cache != nil {
		key = o.cache.Key(models.DomainNone, q.NormalizedText)
		if e, ok := o.cache.Get(ctx, key); ok {
			return e.Payload, true
		}
	}

	payload := o.composer.Compose(q, v, nil, o.now())
	if o.cache != nil {
		o.cache.Put(ctx, key, payload, o.cache.TTLFor(&payload))
	}
	return payload, false
}

func (o *Orchestrator) positive(ctx context.Context, q models.Query, v models.Verdict, ec models.EnrichContext) (models.EnrichmentPayload, bool) {
	key := ""
	if o.cache != nil {
		key = o.cache.Key(v.Domain, cacheText(q, v, ec))
		if e, ok := o.cache.Get(ctx, key); ok {
			return e.Payload, true
		}
	}

	now := o.now()
	results := o.fetchAll(ctx, q, v, ec, now)

	var (
		items    []models.ResultItem
		failures []models.ProviderError
		errs     *multierror.Error
		anyOK    bool
	)
	for _, r := range results {
		if r.Success {
			anyOK = true
			items = append(items, r.Items...)
			continue
		}
		failures = append(failures, r.ProviderError())
		err := r.Err
		if err == nil {
			err = fmt.Errorf("%s", r.ErrorKind)
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Provider, err))
	}

	if !anyOK {
		if errs == nil {
			errs = multierror.Append(errs, apperrors.NewAllProvidersFailedError(
				fmt.Sprintf("no provider routed for domain %s", v.Domain)))
		}
		o.log.Warn("All providers failed", map[string]interface{}{
			"domain":    string(v.Domain),
			"errorCode": string(apperrors.ErrCodeAllProvidersFailed),
			"error":     errs.Error(),
		})
		payload := o.composer.Compose(q, v, nil, now)
		payload.ProviderErrors = failures
		return payload, false
	}
	if errs != nil {
		o.log.Warn("Some providers failed, using partial results", map[string]interface{}{
			"domain": string(v.Domain),
			"failed": len(errs.Errors),
			"error":  errs.Error(),
		})
	}

	_, rankSpan := o.tracer.Start(ctx, "rank")
	ranked := o.ranker.Rank(items, q, ranker.Options{Domain: v.Domain, Now: now})
	rankSpan.SetAttributes(attribute.Int("in", len(items)), attribute.Int("out", len(ranked)))
	rankSpan.End()

	_, composeSpan := o.tracer.Start(ctx, "compose")
	payload := o.composer.Compose(q, v, ranked, now)
	payload.ProviderErrors = failures
	composeSpan.End()

	if o.cache != nil {
		o.cache.Put(ctx, key, payload, o.cache.TTLFor(&payload))
	}
	return payload, false
}

// fetchAll runs the routed providers concurrently. When the overall
// deadline passes first, providers still running are reported as timed out
// and whatever already arrived is used.
func (o *Orchestrator) fetchAll(ctx context.Context, q models.Query, v models.Verdict, ec models.EnrichContext, now time.Time) []providers.Result {
	names := o.cfg.Routing[v.Domain]
	selected := make([]providers.Provider, 0, len(names))
	var missing []providers.Result
	for _, name := range names {
		p, ok := o.providers[name]
		if !ok {
			missing = append(missing, providers.Failed(name,
				apperrors.NewProviderUnavailableError(name, "provider not enabled"), 0))
			continue
		}
		selected = append(selected, p)
	}
	if len(selected) == 0 {
		return missing
	}

	octx, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()

	params := providers.Params{Verdict: v, Context: ec, Now: now}
	ch := make(chan providers.Result, len(selected))
	g, gctx := errgroup.WithContext(octx)
	for _, p := range selected {
		g.Go(func() error {
			ch <- o.fetchOne(gctx, p, q, params)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(ch)
	}()

	arrived := make(map[string]providers.Result, len(selected))
collect:
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				break collect
			}
			arrived[r.Provider] = r
		case <-octx.Done():
			break collect
		}
	}

	// Report in routing order so payloads are reproducible.
	out := make([]providers.Result, 0, len(names))
	for _, p := range selected {
		r, ok := arrived[p.Name()]
		if !ok {
			r = providers.Failed(p.Name(), apperrors.NewProviderTimeoutError(p.Name(), octx.Err()), 0)
			metrics.ProviderCalls.WithLabelValues(p.Name(), "abandoned").Inc()
		}
		out = append(out, r)
	}
	return append(out, missing...)
}

func (o *Orchestrator) fetchOne(ctx context.Context, p providers.Provider, q models.Query, params providers.Params) providers.Result {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()
	pctx, span := o.tracer.Start(pctx, "provider.fetch", trace.WithAttributes(attribute.String("provider", p.Name())))
	defer span.End()

	r := providers.Guard(pctx, p, q, params)

	status := "success"
	if !r.Success {
		status = string(r.ErrorKind)
		span.SetStatus(codes.Error, status)
		o.log.Warn("Provider failed", map[string]interface{}{
			"provider":  p.Name(),
			"errorCode": status,
			"attempts":  r.Attempts,
		})
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), status).Inc()
	metrics.ProviderDuration.WithLabelValues(p.Name()).Observe(r.Duration.Seconds())
	span.SetAttributes(attribute.Int("items", len(r.Items)), attribute.Int("attempts", r.Attempts))
	return r
}

// cacheText is the query material hashed into the cache key: the normalized
// text and the locale. Location-time answers also depend on where the caller
// is.
func cacheText(q models.Query, v models.Verdict, ec models.EnrichContext) string {
	text := q.NormalizedText
	if locale := strings.ToLower(strings.TrimSpace(q.Locale)); locale != "" {
		text += "#" + locale
	}
	if v.Domain != models.DomainLocationTime || ec.ResolvedLocation == nil {
		return text
	}
	loc := ec.ResolvedLocation
	return fmt.Sprintf("%s@%.2f,%.2f", text, round2(loc.Latitude), round2(loc.Longitude))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
