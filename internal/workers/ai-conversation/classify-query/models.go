// internal/workers/ai-conversation/classify-query/models.go
package classifyquery

import "query-enrichment/internal/models"

type Input struct {
	Query   string   `json:"query"`
	History []string `json:"history,omitempty"`
	Locale  string   `json:"locale,omitempty"`
}

type Output struct {
	NormalizedQuery string         `json:"normalizedQuery"`
	Verdict         models.Verdict `json:"verdict"`
	DataSources     []string       `json:"dataSources"`
}
