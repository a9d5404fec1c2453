package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-enrichment/internal/common/config"
	"query-enrichment/internal/common/database"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/models"
)

const resultsPage = `<html><body>
<div class="result">
  <h2><a class="result__a" href="https://markets.test/oil">Oil slides on supply news</a></h2>
  <a class="result__snippet" href="#">Brent fell.</a>
</div>
<div class="result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fmetals.test%2Fgold">Gold price today</a></h2>
  <a class="result__snippet" href="#">Spot gold price in USD.</a>
</div>
</body></html>`

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	return cfg
}

func baseConfig(searchURL string) string {
	return fmt.Sprintf(`
enrichment:
  composer:
    encoding: heuristic
  search:
    backends: [duckduckgo]
    duckduckgo_url: %s
  providers:
    crawled-content:
      enabled: false
`, searchURL)
}

// ==========================
// Build
// ==========================

func TestBuild_EndToEndGenericSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gold price today", r.URL.Query().Get("q"))
		_, _ = io.WriteString(w, resultsPage)
	}))
	defer server.Close()

	engine, err := Build(loadConfig(t, baseConfig(server.URL)), Clients{}, logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"location-time", "generic-search"}, engine.Providers)
	assert.Equal(t, []string{"memory"}, engine.Cache.Tiers())
	assert.Equal(t, 6, engine.Limiter.Capacity())
	assert.Equal(t, 800, engine.MaxTokens)

	payload := engine.Orchestrator.Enrich(context.Background(), "gold price today", models.EnrichContext{})

	assert.Equal(t, models.DomainGenericSearch, payload.Domain)
	require.NotEmpty(t, payload.Items)
	assert.Equal(t, "Gold price today", payload.Items[0].Title)
	assert.Equal(t, "https://metals.test/gold", payload.Items[0].SourceURL)
	assert.Positive(t, engine.Limiter.Acquired(), "outbound calls go through the limiter")

	text := engine.Renderer.Render(payload, engine.MaxTokens)
	assert.Contains(t, text, "Gold price today")
}

func TestBuild_NegativeQueryNeedsNoNetwork(t *testing.T) {
	engine, err := Build(loadConfig(t, baseConfig("http://127.0.0.1:1/")), Clients{}, logger.NewTestLogger(t))
	require.NoError(t, err)

	payload := engine.Orchestrator.Enrich(context.Background(), "hello how are you", models.EnrichContext{})

	assert.Equal(t, models.DomainNone, payload.Domain)
	assert.Equal(t, models.QualityNone, payload.QualityLevel)
	assert.Equal(t, int64(0), engine.Limiter.Acquired())
}

func TestBuild_WithBackingServices(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer redisClient.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	engine, err := Build(loadConfig(t, baseConfig("http://127.0.0.1:1/")), Clients{
		Redis:    redisClient,
		Postgres: &database.PostgresClient{DB: db},
	}, logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"memory", "redis"}, engine.Cache.Tiers())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuild_SkipsBackendsWithoutClients(t *testing.T) {
	cfg := loadConfig(t, `
enrichment:
  composer:
    encoding: heuristic
  search:
    backends: [api, elasticsearch]
`)
	engine, err := Build(cfg, Clients{}, logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.Contains(t, engine.Providers, "generic-search")
}

func TestBuild_LoadsRegistryAndTerms(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(registryPath, []byte(`{
  "version": "2",
  "sources": [
    {"id": "local", "name": "Local Wire", "url": "https://wire.test/", "trust": 0.9, "enabled": true},
    {"id": "old", "name": "Old Wire", "url": "https://old.test/", "trust": 0.1, "enabled": false}
  ]
}`), 0o600))
	termsPath := filepath.Join(dir, "terms.yaml")
	require.NoError(t, os.WriteFile(termsPath, []byte("sets:\n  - name: sport\n    specific: true\n    weights:\n      genericSearch: 4\n    terms: [football]\n"), 0o600))

	cfg := loadConfig(t, fmt.Sprintf(`
enrichment:
  composer:
    encoding: heuristic
  classifier:
    terms_file: %s
  crawled:
    registry_file: %s
`, termsPath, registryPath))

	engine, err := Build(cfg, Clients{}, logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.Len(t, engine.Registry.Enabled(), 1)
	_, v := engine.Orchestrator.Classify(context.Background(), "football scores", models.EnrichContext{})
	assert.Equal(t, models.DomainGenericSearch, v.Domain)
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	tests := map[string]string{
		"unknown backend": `
enrichment:
  search:
    backends: [bing]
`,
		"unknown method": `
enrichment:
  location_time:
    method: nonsense
`,
		"unknown routing domain": `
enrichment:
  routing:
    weather: [generic-search]
`,
		"missing registry": `
enrichment:
  crawled:
    registry_file: /nonexistent/sources.json
`,
		"missing terms": `
enrichment:
  classifier:
    terms_file: /nonexistent/terms.yaml
`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Build(loadConfig(t, body), Clients{}, logger.NewTestLogger(t))
			assert.Error(t, err)
		})
	}
}

// ==========================
// Domain keys
// ==========================

func TestDomainFromKey(t *testing.T) {
	tests := map[string]models.Domain{
		"location_time":  models.DomainLocationTime,
		"locationTime":   models.DomainLocationTime,
		"crawled_news":   models.DomainCrawledNews,
		"generic_search": models.DomainGenericSearch,
		"none":           models.DomainNone,
	}
	for key, want := range tests {
		got, ok := DomainFromKey(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok := DomainFromKey("weather")
	assert.False(t, ok)
}

func TestRouting(t *testing.T) {
	routing, err := Routing(map[string][]string{"crawled_news": {"crawled-content"}})
	require.NoError(t, err)
	assert.Equal(t, map[models.Domain][]string{models.DomainCrawledNews: {"crawled-content"}}, routing)

	def, err := Routing(nil)
	require.NoError(t, err)
	assert.Len(t, def, 3)
}
