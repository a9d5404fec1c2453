package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/validation"
	"query-enrichment/internal/models"
)

type EnrichRequest struct {
	Query     string           `json:"query"`
	SessionID string           `json:"sessionId,omitempty"`
	Locale    string           `json:"locale,omitempty"`
	History   []string         `json:"history,omitempty"`
	Location  *models.Location `json:"location,omitempty"`
}

type EnrichResponse struct {
	RequestID      string                   `json:"requestId"`
	Enrichment     models.EnrichmentPayload `json:"enrichment"`
	EnrichmentText string                   `json:"enrichmentText,omitempty"`
}

type ClassifyRequest struct {
	Query   string   `json:"query"`
	History []string `json:"history,omitempty"`
}

type ClassifyResponse struct {
	RequestID       string         `json:"requestId"`
	NormalizedQuery string         `json:"normalizedQuery"`
	Verdict         models.Verdict `json:"verdict"`
	DataSources     []string       `json:"dataSources"`
}

type errorResponse struct {
	Error  *apperrors.StandardError     `json:"error"`
	Fields []validation.ValidationError `json:"fields,omitempty"`
}

// bind validates the raw body against v before decoding it into dst.
func bind(c *gin.Context, v *validation.Validator, dst interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: apperrors.NewValidationError(err.Error())})
		return false
	}
	if result := v.ValidateJSON(body); !result.Valid {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:  apperrors.NewValidationError(result.Error()),
			Fields: result.Errors,
		})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: apperrors.NewValidationError(err.Error())})
		return false
	}
	return true
}

func (s *Server) enrich(c *gin.Context) {
	var req EnrichRequest
	if !bind(c, s.enrichValidator, &req) {
		return
	}

	payload := s.opts.Engine.Enrich(c.Request.Context(), req.Query, models.EnrichContext{
		SessionHistoryTail: req.History,
		LocaleHint:         req.Locale,
		ResolvedLocation:   req.Location,
		SessionID:          req.SessionID,
	})

	resp := EnrichResponse{
		RequestID:  c.GetString("requestId"),
		Enrichment: payload,
	}
	if c.Query("format") != "json" {
		resp.EnrichmentText = s.opts.Renderer.Render(payload, s.opts.MaxTokens)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) classify(c *gin.Context) {
	var req ClassifyRequest
	if !bind(c, s.classifyValidator, &req) {
		return
	}

	q, v := s.opts.Engine.Classify(c.Request.Context(), req.Query, models.EnrichContext{
		SessionHistoryTail: req.History,
	})
	sources := []string{}
	if v.NeedsExternalData {
		sources = s.opts.Engine.Route(v.Domain)
	}

	c.JSON(http.StatusOK, ClassifyResponse{
		RequestID:       c.GetString("requestId"),
		NormalizedQuery: q.NormalizedText,
		Verdict:         v,
		DataSources:     sources,
	})
}

func (s *Server) sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.opts.Registry.Version,
		"sources": s.opts.Registry.Enabled(),
	})
}
