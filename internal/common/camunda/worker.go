// internal/common/camunda/worker.go
package camunda

import (
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"query-enrichment/internal/common/config"
)

// Workers owns the job workers opened against one client.
type Workers struct {
	client *Client
	open   []worker.JobWorker
	logger *zap.Logger
}

func NewWorkers(client *Client, logger *zap.Logger) *Workers {
	return &Workers{client: client, logger: logger}
}

// Register opens a worker for taskType unless wcfg disables it.
func (w *Workers) Register(taskType string, wcfg config.WorkerConfig, handler worker.JobHandler) bool {
	if !wcfg.Enabled {
		w.logger.Info("worker disabled", zap.String("taskType", taskType))
		return false
	}

	jw := w.client.Raw().NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()
	w.open = append(w.open, jw)

	w.logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return true
}

func (w *Workers) Count() int {
	return len(w.open)
}

// Close stops polling and waits for in-flight jobs on every worker.
func (w *Workers) Close() {
	for _, jw := range w.open {
		jw.Close()
		jw.AwaitClose()
	}
	w.open = nil
}
