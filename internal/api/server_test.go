package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/orchestrator"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSearch struct{}

func (stubSearch) Name() string { return providers.NameGenericSearch }

func (stubSearch) Fetch(ctx context.Context, q models.Query, p providers.Params) providers.Result {
	return providers.Succeeded(providers.NameGenericSearch, []models.ResultItem{
		{Title: "Gold price today", Summary: "Spot gold price.", SourceName: "Metals", SourceURL: "https://metals.test/gold"},
	}, 1)
}

func setupRouter(t *testing.T, checks map[string]Check) *gin.Engine {
	t.Helper()
	log := logger.NewTestLogger(t)
	engine := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Providers: []providers.Provider{stubSearch{}},
	}, log)
	return NewRouter(Options{
		Engine:    engine,
		MaxTokens: 400,
		Checks:    checks,
		Logger:    log,
	})
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ==========================
// Probes
// ==========================

func TestHealth(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestReady(t *testing.T) {
	ok := setupRouter(t, map[string]Check{
		"redis": func(ctx context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, do(ok, http.MethodGet, "/ready", "").Code)

	failing := setupRouter(t, map[string]Check{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w := do(failing, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// ==========================
// Enrich
// ==========================

func TestEnrich(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodPost, "/api/v1/enrich", `{"query":"gold price today","sessionId":"s-1"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp EnrichResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, w.Header().Get(requestIDHeader), resp.RequestID)
	assert.Equal(t, models.DomainGenericSearch, resp.Enrichment.Domain)
	require.Len(t, resp.Enrichment.Items, 1)
	assert.Equal(t, "Gold price today", resp.Enrichment.Items[0].Title)
	assert.Contains(t, resp.EnrichmentText, "### Source: Metals")
}

func TestEnrich_JSONOnlyFormat(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodPost, "/api/v1/enrich?format=json", `{"query":"gold price today"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp EnrichResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.EnrichmentText)
}

func TestEnrich_KeepsCallerRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrich", strings.NewReader(`{"query":"hello"}`))
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	setupRouter(t, nil).ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
}

func TestEnrich_ValidationErrors(t *testing.T) {
	tests := map[string]string{
		"missing query":   `{"sessionId":"s-1"}`,
		"empty query":     `{"query":""}`,
		"bad latitude":    `{"query":"prayer times","location":{"latitude":120,"longitude":0}}`,
		"malformed body":  `{"query":`,
		"wrong type":      `{"query":42}`,
		"history too big": `{"query":"x","history":[` + strings.TrimSuffix(strings.Repeat(`"a",`, 21), ",") + `]}`,
	}

	router := setupRouter(t, nil)
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/v1/enrich", body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Error apperrors.StandardError `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, apperrors.ErrCodeValidationFailed, resp.Error.Code)
		})
	}
}

// ==========================
// Classify and sources
// ==========================

func TestClassify(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodPost, "/api/v1/classify", `{"query":"latest news"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "latest news", resp.NormalizedQuery)
	assert.Equal(t, models.DomainCrawledNews, resp.Verdict.Domain)
	assert.Equal(t, []string{providers.NameCrawledContent, providers.NameGenericSearch}, resp.DataSources)
}

func TestClassify_SmallTalkHasNoSources(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodPost, "/api/v1/classify", `{"query":"hello how are you"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Verdict.NeedsExternalData)
	assert.Empty(t, resp.DataSources)
}

func TestSources(t *testing.T) {
	w := do(setupRouter(t, nil), http.MethodGet, "/api/v1/sources", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BBC News")
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/enrich", nil)
	req.Header.Set("Origin", "https://chat.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	setupRouter(t, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
