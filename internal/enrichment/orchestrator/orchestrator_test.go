package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/cache"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	name   string
	items  []models.ResultItem
	err    error
	delay  time.Duration
	panics bool
	calls  *atomic.Int64
}

func newFake(name string, items ...models.ResultItem) *fakeProvider {
	return &fakeProvider{name: name, items: items, calls: atomic.NewInt64(0)}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, q models.Query, p providers.Params) providers.Result {
	f.calls.Inc()
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return providers.Failed(f.name, apperrors.FromContextError(f.name, ctx.Err()), 1)
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return providers.Failed(f.name, f.err, 1)
	}
	items := make([]models.ResultItem, len(f.items))
	for i, it := range f.items {
		items[i] = it.Clone()
	}
	return providers.Succeeded(f.name, items, 1)
}

func article(title, source, url string) models.ResultItem {
	return models.ResultItem{Title: title, SourceName: source, SourceURL: url}
}

func goldItems() []models.ResultItem {
	return []models.ResultItem{
		article("Commodities market wrap", "A", "https://a.test/market"),
		article("Oil price slides", "B", "https://b.test/oil"),
		article("Gold price climbs to record", "C", "https://c.test/gold"),
	}
}

func newOrchestrator(t *testing.T, cfg Config, c *cache.Cache, ps ...providers.Provider) *Orchestrator {
	t.Helper()
	return New(cfg, Deps{Providers: ps, Cache: c}, logger.NewTestLogger(t)).
		WithClock(func() time.Time { return fixedNow })
}

func newCache(t *testing.T) (*cache.Cache, *cache.MemoryStore) {
	t.Helper()
	memory := cache.NewMemoryStore(64)
	return cache.New(cache.Config{Prefix: "test"}, logger.NewTestLogger(t), memory), memory
}

// ==========================
// Scenarios
// ==========================

func TestEnrich_NegativeQueryMakesNoProviderCalls(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := newFake(providers.NameGenericSearch, goldItems()...)
	c, memory := newCache(t)
	o := newOrchestrator(t, Config{}, c, search)

	for i := 0; i < 2; i++ {
		p := o.Enrich(context.Background(), "hello how are you", models.EnrichContext{})
		assert.Equal(t, models.DomainNone, p.Domain)
		assert.Empty(t, p.Items)
		assert.Equal(t, models.QualityNone, p.QualityLevel)
	}
	assert.Equal(t, int64(0), search.calls.Load())
	assert.Equal(t, 1, memory.Len(), "negative verdict cached once")
}

func TestEnrich_GoldPriceScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := newFake(providers.NameGenericSearch, goldItems()...)
	o := newOrchestrator(t, Config{}, nil, search)

	p := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.DomainGenericSearch, p.Domain)
	assert.Equal(t, models.PriorityHigh, p.Priority)
	require.NotEmpty(t, p.Items)
	assert.Equal(t, "Gold price climbs to record", p.Items[0].Title)
	assert.True(t, p.QualityLevel.AtLeast(models.QualityFair), string(p.QualityLevel))
	assert.Empty(t, p.ProviderErrors)
	assert.Equal(t, fixedNow, p.GeneratedAt)
	assert.Equal(t, int64(1), search.calls.Load())
}

func TestEnrich_RepeatedQueryServedFromCache(t *testing.T) {
	search := newFake(providers.NameGenericSearch, goldItems()...)
	c, _ := newCache(t)
	o := newOrchestrator(t, Config{}, c, search)

	first := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})
	afterFirst := search.calls.Load()
	second := o.Enrich(context.Background(), "Gold price today?", models.EnrichContext{})

	assert.Equal(t, afterFirst, search.calls.Load())
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.QualityLevel, second.QualityLevel)
}

func TestEnrich_AllProvidersFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := newFake(providers.NameGenericSearch)
	search.err = apperrors.NewProviderHTTPError(providers.NameGenericSearch, 503, "https://search.test")
	c, memory := newCache(t)
	o := newOrchestrator(t, Config{}, c, search)

	p := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.QualityNone, p.QualityLevel)
	assert.Empty(t, p.Items)
	assert.Equal(t, models.NoExternalDataNotice, p.Notice)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, providers.NameGenericSearch, p.ProviderErrors[0].Provider)
	assert.Equal(t, string(apperrors.ErrCodeProviderHTTPError), p.ProviderErrors[0].ErrorKind)

	assert.Equal(t, 0, memory.Len(), "failures are not cached")
	o.Enrich(context.Background(), "gold price today", models.EnrichContext{})
	assert.Equal(t, int64(2), search.calls.Load())
}

func TestEnrich_PartialResultsWhenOneProviderFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	crawled := newFake(providers.NameCrawledContent)
	crawled.err = apperrors.NewProviderParseError(providers.NameCrawledContent, assert.AnError)
	search := newFake(providers.NameGenericSearch,
		article("Latest news on markets", "Wire", "https://wire.test/1"))
	o := newOrchestrator(t, Config{}, nil, crawled, search)

	p := o.Enrich(context.Background(), "latest news", models.EnrichContext{})

	assert.Equal(t, models.DomainCrawledNews, p.Domain)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Latest news on markets", p.Items[0].Title)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, providers.NameCrawledContent, p.ProviderErrors[0].Provider)
	assert.Equal(t, string(apperrors.ErrCodeProviderParseError), p.ProviderErrors[0].ErrorKind)
}

func TestEnrich_OverallDeadlineKeepsPartialResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := newFake(providers.NameCrawledContent, article("Never arrives", "Slow", "https://slow.test"))
	slow.delay = 5 * time.Second
	search := newFake(providers.NameGenericSearch,
		article("Latest news on markets", "Wire", "https://wire.test/1"))
	o := newOrchestrator(t, Config{OverallTimeout: 100 * time.Millisecond, ProviderTimeout: time.Second}, nil, slow, search)

	start := time.Now()
	p := o.Enrich(context.Background(), "latest news", models.EnrichContext{})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Latest news on markets", p.Items[0].Title)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, string(apperrors.ErrCodeProviderTimeout), p.ProviderErrors[0].ErrorKind)
}

func TestEnrich_PerProviderTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := newFake(providers.NameGenericSearch, goldItems()...)
	slow.delay = 5 * time.Second
	o := newOrchestrator(t, Config{ProviderTimeout: 50 * time.Millisecond, OverallTimeout: 5 * time.Second}, nil, slow)

	p := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.QualityNone, p.QualityLevel)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, string(apperrors.ErrCodeProviderTimeout), p.ProviderErrors[0].ErrorKind)
}

func TestEnrich_PanickingProviderIsContained(t *testing.T) {
	crawled := newFake(providers.NameCrawledContent)
	crawled.panics = true
	search := newFake(providers.NameGenericSearch,
		article("Latest news on markets", "Wire", "https://wire.test/1"))
	o := newOrchestrator(t, Config{}, nil, crawled, search)

	p := o.Enrich(context.Background(), "latest news", models.EnrichContext{})

	require.Len(t, p.Items, 1)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, string(apperrors.ErrCodeInternal), p.ProviderErrors[0].ErrorKind)
}

func TestEnrich_UnroutedProvider(t *testing.T) {
	o := newOrchestrator(t, Config{}, nil)

	p := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.QualityNone, p.QualityLevel)
	require.Len(t, p.ProviderErrors, 1)
	assert.Equal(t, string(apperrors.ErrCodeProviderUnavailable), p.ProviderErrors[0].ErrorKind)
}

func TestEnrich_SyntheticOnlyIsPoor(t *testing.T) {
	placeholder := models.ResultItem{
		Title:      "Overview: gold price today",
		SourceName: "synthetic",
		Synthetic:  true,
		DomainTags: []string{models.TagSynthetic},
	}
	o := newOrchestrator(t, Config{}, nil, newFake(providers.NameGenericSearch, placeholder))

	p := o.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.QualityPoor, p.QualityLevel)
	require.Len(t, p.Items, 1)
	assert.True(t, p.Items[0].Synthetic)
}

func TestEnrich_LocationIsPartOfCacheKey(t *testing.T) {
	prayer := newFake(providers.NameLocationTime,
		article("Prayer times today in Cairo", "calculated", ""))
	c, _ := newCache(t)
	o := newOrchestrator(t, Config{}, c, prayer)

	cairo := models.EnrichContext{ResolvedLocation: &models.Location{Name: "Cairo", Latitude: 30.04, Longitude: 31.24}}
	london := models.EnrichContext{ResolvedLocation: &models.Location{Name: "London", Latitude: 51.51, Longitude: -0.13}}

	o.Enrich(context.Background(), "prayer times today", cairo)
	o.Enrich(context.Background(), "prayer times today", cairo)
	o.Enrich(context.Background(), "prayer times today", london)

	assert.Equal(t, int64(2), prayer.calls.Load())
}

func TestEnrich_LocaleIsPartOfCacheKey(t *testing.T) {
	search := newFake(providers.NameGenericSearch, goldItems()...)
	c, _ := newCache(t)
	o := newOrchestrator(t, Config{}, c, search)

	o.Enrich(context.Background(), "gold price today", models.EnrichContext{LocaleHint: "en"})
	o.Enrich(context.Background(), "gold price today", models.EnrichContext{LocaleHint: "EN"})
	o.Enrich(context.Background(), "gold price today", models.EnrichContext{LocaleHint: "ar"})

	assert.Equal(t, int64(2), search.calls.Load())
}

func TestCacheText(t *testing.T) {
	q := models.NewQuery("Prayer times today", "en", "")
	located := models.Verdict{Domain: models.DomainLocationTime}
	cairo := models.EnrichContext{ResolvedLocation: &models.Location{Latitude: 30.0444, Longitude: 31.2357}}

	assert.Equal(t, "prayer times today#en", cacheText(q, models.Verdict{Domain: models.DomainGenericSearch}, cairo))
	assert.Equal(t, "prayer times today#en@30.04,31.24", cacheText(q, located, cairo))
	assert.Equal(t, "prayer times today", cacheText(models.NewQuery("Prayer times today", "", ""), located, models.EnrichContext{}))
}

func TestClassify(t *testing.T) {
	o := newOrchestrator(t, Config{}, nil)

	q, v := o.Classify(context.Background(), "  What are the prayer times in Cairo today? ", models.EnrichContext{LocaleHint: "en"})

	assert.Equal(t, "what are the prayer times in cairo today", q.NormalizedText)
	assert.Equal(t, "en", q.Locale)
	assert.True(t, v.NeedsExternalData)
	assert.Equal(t, models.DomainLocationTime, v.Domain)
}

func TestClassify_AmbiguousLogsErrorCode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := New(Config{}, Deps{}, logger.NewZapAdapter(zap.New(core)))

	_, v := o.Classify(context.Background(), "what is happening right now today", models.EnrichContext{})

	require.True(t, v.Ambiguous, v.Reason)
	entries := logs.FilterField(zap.String("errorCode", string(apperrors.ErrCodeClassificationAmbiguous))).All()
	require.Len(t, entries, 1)
	assert.Equal(t, v.Reason, entries[0].ContextMap()["reason"])
}

func TestRoute_ReturnsCopy(t *testing.T) {
	o := newOrchestrator(t, Config{}, nil)

	route := o.Route(models.DomainCrawledNews)
	require.Equal(t, []string{providers.NameCrawledContent, providers.NameGenericSearch}, route)

	route[0] = "mutated"
	assert.Equal(t, providers.NameCrawledContent, o.Route(models.DomainCrawledNews)[0])
	assert.Empty(t, o.Route(models.DomainNone))
}
