// internal/workers/ai-conversation/classify-query/handler.go
package classifyquery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/common/validation"
	"query-enrichment/internal/models"
)

const (
	TaskType = "classify-query"
)

// Router classifies queries and knows which providers serve each domain.
type Router interface {
	Classify(ctx context.Context, raw string, ec models.EnrichContext) (models.Query, models.Verdict)
	Route(d models.Domain) []string
}

type Handler struct {
	config    *Config
	router    Router
	validator *validation.Validator
	errors    *apperrors.JobErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, router Router, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:    config,
		router:    router,
		validator: validation.MustValidator(validation.ClassifyRequestSchema),
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
		h.errors.HandleJobError(context.Background(), client, job,
			apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.errors.HandleJobError(context.Background(), client, job, apperrors.NewInternalError(err))
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
		"domain": string(output.Verdict.Domain),
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if result := h.validator.ValidateInput(input); !result.Valid {
		return nil, apperrors.NewValidationError(result.Error())
	}

	q, v := h.router.Classify(ctx, input.Query, models.EnrichContext{
		SessionHistoryTail: input.History,
		LocaleHint:         input.Locale,
	})

	sources := []string{}
	if v.NeedsExternalData {
		sources = h.router.Route(v.Domain)
	}

	return &Output{
		NormalizedQuery: q.NormalizedText,
		Verdict:         v,
		DataSources:     sources,
	}, nil
}
