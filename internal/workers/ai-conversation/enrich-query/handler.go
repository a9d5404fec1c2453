// internal/workers/ai-conversation/enrich-query/handler.go
package enrichquery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/common/validation"
	"query-enrichment/internal/enrichment/composer"
	"query-enrichment/internal/models"
)

const (
	TaskType = "enrich-query"
)

// Enricher is the part of the orchestrator this worker needs.
type Enricher interface {
	Enrich(ctx context.Context, raw string, ec models.EnrichContext) models.EnrichmentPayload
}

type Handler struct {
	config    *Config
	engine    Enricher
	renderer  *composer.Renderer
	validator *validation.Validator
	errors    *apperrors.JobErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, engine Enricher, renderer *composer.Renderer, log logger.Logger) *Handler {
	if renderer == nil {
		renderer = composer.NewRenderer(nil)
	}
	log = log.WithFields(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:    config,
		engine:    engine,
		renderer:  renderer,
		validator: validation.MustValidator(validation.EnrichRequestSchema),
		errors:    apperrors.NewJobErrorHandler(log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Execute runs the enrichment outside of a job, for tests and callers that
// already hold decoded input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if result := h.validator.ValidateInput(input); !result.Valid {
		return nil, apperrors.NewValidationError(result.Error())
	}

	requestID := uuid.NewString()
	payload := h.engine.Enrich(ctx, input.Query, models.EnrichContext{
		SessionHistoryTail: input.History,
		LocaleHint:         input.Locale,
		ResolvedLocation:   input.Location,
		SessionID:          input.SessionID,
	})

	output := &Output{
		RequestID:      requestID,
		Enrichment:     payload,
		EnrichmentText: h.renderer.Render(payload, h.config.MaxTokens),
		NeedsContext:   payload.Domain != models.DomainNone,
	}

	h.logger.Info("enrichment completed", map[string]interface{}{
		"requestId":      requestID,
		"domain":         string(payload.Domain),
		"quality":        string(payload.QualityLevel),
		"itemCount":      len(payload.Items),
		"providerErrors": len(payload.ProviderErrors),
	})
	return output, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		h.failJob(client, job, apperrors.NewInternalError(err))
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	h.errors.HandleJobError(context.Background(), client, job, err)
}
