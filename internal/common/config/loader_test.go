package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// Loading
// ==========================

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: test-enrichment\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-enrichment", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Enrichment.Limiter.Capacity)
	assert.Equal(t, 15*time.Second, GetDuration(cfg.Enrichment.Timeouts.Provider))
	assert.Equal(t, 20*time.Second, GetDuration(cfg.Enrichment.Timeouts.Overall))
	assert.Equal(t, 72*time.Hour, GetDuration(cfg.Enrichment.Ranker.RecencyCutoff))
	assert.Equal(t, 100.0, cfg.Enrichment.Ranker.Weights.ExactPhrase)
	assert.Equal(t, []string{"crawled-content", "generic-search"}, cfg.Enrichment.Routing["crawled_news"])
	assert.True(t, cfg.Enrichment.Providers["generic-search"].Enabled)
	assert.Equal(t, 6*time.Hour, GetDuration(cfg.Enrichment.Cache.TTL["location_time"]))
	assert.Equal(t, "regex", cfg.Enrichment.Crawled.Extractor)
}

func TestLoadFromFile_Overrides(t *testing.T) {
	t.Setenv("TEST_SEARCH_ENDPOINT", "http://search.internal/api")
	path := writeConfig(t, `
enrichment:
  limiter:
    capacity: 2
  providers:
    crawled-content:
      enabled: false
  cache:
    ttl:
      crawled_news: 60000
  search:
    api_endpoint: ${TEST_SEARCH_ENDPOINT}
    backends: [api]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Enrichment.Limiter.Capacity)
	assert.False(t, cfg.Enrichment.Providers["crawled-content"].Enabled)
	assert.True(t, cfg.Enrichment.Providers["location-time"].Enabled)
	assert.Equal(t, 60000, cfg.Enrichment.Cache.TTL["crawled_news"])
	assert.Equal(t, int((time.Hour).Milliseconds()), cfg.Enrichment.Cache.TTL["generic_search"])
	assert.Equal(t, "http://search.internal/api", cfg.Enrichment.Search.APIEndpoint)
	assert.Equal(t, []string{"api"}, cfg.Enrichment.Search.Backends)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"camunda without broker", "camunda:\n  enabled: true\n"},
		{"overall shorter than provider", "enrichment:\n  timeouts:\n    provider: 5000\n    overall: 1000\n"},
		{"unknown extractor", "enrichment:\n  crawled:\n    extractor: dom\n"},
		{"redis without address", "database:\n  redis:\n    enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// ==========================
// Helpers
// ==========================

func TestDomainKey(t *testing.T) {
	assert.Equal(t, "location_time", DomainKey("locationTime"))
	assert.Equal(t, "generic_search", DomainKey("genericSearch"))
	assert.Equal(t, "none", DomainKey("none"))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "enrich-query")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 3, wc.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "enrich-query"))
}
