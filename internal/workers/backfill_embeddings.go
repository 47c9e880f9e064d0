// Package workers provides River job workers.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/service"
)

const defaultBackfillJobTimeout = 2 * time.Hour

// backfillRunner is the minimal interface needed by the worker.
type backfillRunner interface {
	Run(ctx context.Context, batchSize int) (models.BackfillResult, error)
}

// BackfillEmbeddingsWorker runs a queued embedding backfill to completion.
type BackfillEmbeddingsWorker struct {
	river.WorkerDefaults[service.BackfillEmbeddingsArgs]

	runner  backfillRunner
	timeout time.Duration
	logger  *slog.Logger
}

// NewBackfillEmbeddingsWorker creates the worker. Zero timeout uses two hours; a nil logger uses slog.Default.
func NewBackfillEmbeddingsWorker(runner backfillRunner, timeout time.Duration, logger *slog.Logger) *BackfillEmbeddingsWorker {
	if timeout <= 0 {
		timeout = defaultBackfillJobTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &BackfillEmbeddingsWorker{runner: runner, timeout: timeout, logger: logger}
}

// Timeout bounds one backfill run. Progress survives a timeout because every
// embedding is persisted as soon as it is computed.
func (w *BackfillEmbeddingsWorker) Timeout(*river.Job[service.BackfillEmbeddingsArgs]) time.Duration {
	return w.timeout
}

// Work runs the backfill. Claim errors are returned so River retries the job; per-movie
// failures are part of the result and do not fail the job.
func (w *BackfillEmbeddingsWorker) Work(ctx context.Context, job *river.Job[service.BackfillEmbeddingsArgs]) error {
	batchSize := job.Args.BatchSize
	if batchSize <= 0 {
		batchSize = service.DefaultBackfillBatchSize
	}

	result, err := w.runner.Run(ctx, batchSize)
	if err != nil {
		w.logger.Error("backfill job: run failed",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"processed", result.Processed,
			"failed", result.Failed,
			"error", err,
		)

		return fmt.Errorf("backfill embeddings: %w", err)
	}

	w.logger.Info("backfill job: completed",
		"job_id", job.ID,
		"batches", result.Batches,
		"processed", result.Processed,
		"failed", result.Failed,
	)

	return nil
}
