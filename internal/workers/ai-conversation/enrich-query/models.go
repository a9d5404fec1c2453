// internal/workers/ai-conversation/enrich-query/models.go
package enrichquery

import "query-enrichment/internal/models"

type Input struct {
	Query     string           `json:"query"`
	SessionID string           `json:"sessionId,omitempty"`
	Locale    string           `json:"locale,omitempty"`
	History   []string         `json:"history,omitempty"`
	Location  *models.Location `json:"location,omitempty"`
}

type Output struct {
	RequestID      string                   `json:"requestId"`
	Enrichment     models.EnrichmentPayload `json:"enrichment"`
	EnrichmentText string                   `json:"enrichmentText"`
	NeedsContext   bool                     `json:"needsContext"`
}
