package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/observability"
)

const (
	backfillEmbeddingsKind = "backfill_embeddings"
	// EmbeddingsQueueName is the River queue that runs backfill jobs.
	EmbeddingsQueueName = "embeddings"
	// MaxBackfillBatchSize bounds the batch size accepted by the enqueue endpoint.
	MaxBackfillBatchSize = 500

	backfillJobMaxAttempts = 3
)

// BackfillEmbeddingsArgs is the job payload of a queued backfill run.
// Jobs are unique by args, so repeated triggers with the same batch size collapse into one job.
type BackfillEmbeddingsArgs struct {
	BatchSize int `json:"batch_size"`
}

// Kind returns the River job kind.
func (BackfillEmbeddingsArgs) Kind() string { return backfillEmbeddingsKind }

// InsertOpts places the job on the embeddings queue and deduplicates it while pending or running.
func (BackfillEmbeddingsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       EmbeddingsQueueName,
		MaxAttempts: backfillJobMaxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			// River requires pending, scheduled, available and running when ByState is set.
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateScheduled,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
			},
		},
	}
}

var _ river.JobArgsWithInsertOpts = BackfillEmbeddingsArgs{}

// JobInserter inserts River jobs; satisfied by *river.Client.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// BackfillEnqueuer turns a backfill trigger into a queued job.
type BackfillEnqueuer struct {
	inserter JobInserter
	metrics  observability.EmbeddingMetrics
	logger   *slog.Logger
}

// BackfillEnqueuerParams configures BackfillEnqueuer. Metrics may be nil.
type BackfillEnqueuerParams struct {
	Inserter JobInserter
	Metrics  observability.EmbeddingMetrics
	Logger   *slog.Logger
}

// NewBackfillEnqueuer creates a BackfillEnqueuer.
func NewBackfillEnqueuer(p BackfillEnqueuerParams) *BackfillEnqueuer {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BackfillEnqueuer{inserter: p.Inserter, metrics: p.Metrics, logger: logger}
}

// Enqueue queues a backfill with the given batch size (zero: DefaultBackfillBatchSize).
// When an identical job is already pending or running, that job is returned with Duplicate set.
func (e *BackfillEnqueuer) Enqueue(ctx context.Context, batchSize int) (*models.BackfillResponse, error) {
	if batchSize == 0 {
		batchSize = DefaultBackfillBatchSize
	}

	if batchSize < 0 || batchSize > MaxBackfillBatchSize {
		return nil, huberrors.NewInvalidArgumentError("batchSize",
			fmt.Sprintf("batch size must be between 1 and %d", MaxBackfillBatchSize))
	}

	res, err := e.inserter.Insert(ctx, BackfillEmbeddingsArgs{BatchSize: batchSize}, nil)
	if err != nil {
		return nil, fmt.Errorf("enqueue backfill: %w", err)
	}

	resp := &models.BackfillResponse{Status: "queued", BatchSize: batchSize}
	if res != nil {
		resp.Duplicate = res.UniqueSkippedAsDuplicate
		if res.Job != nil {
			resp.JobID = res.Job.ID
		}
	}

	if !resp.Duplicate && e.metrics != nil {
		e.metrics.RecordBackfillJobEnqueued(ctx)
	}

	e.logger.Info("backfill: job queued", "job_id", resp.JobID, "batch_size", batchSize, "duplicate", resp.Duplicate)

	return resp, nil
}

const (
	defaultInsertBackoff = 500 * time.Millisecond
	backoffMultiplier    = 2
)

// RetryingJobInserter wraps a JobInserter and retries Insert with exponential backoff and jitter.
// Use for transient database errors while enqueueing.
type RetryingJobInserter struct {
	inner          JobInserter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// RetryingJobInserterConfig holds configuration for the retrying inserter.
type RetryingJobInserterConfig struct {
	MaxRetries     int           // Retries after the first attempt.
	InitialBackoff time.Duration // Doubles each attempt, capped by MaxBackoff.
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// NewRetryingJobInserter returns a JobInserter that retries Insert on error.
func NewRetryingJobInserter(inner JobInserter, cfg RetryingJobInserterConfig) *RetryingJobInserter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInsertBackoff
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RetryingJobInserter{
		inner:          inner,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         cfg.Logger,
	}
}

// Insert calls the inner inserter, retrying up to maxRetries times. Context cancellation
// interrupts the backoff.
func (r *RetryingJobInserter) Insert(
	ctx context.Context, args river.JobArgs, opts *river.InsertOpts,
) (*rivertype.JobInsertResult, error) {
	var lastErr error

	backoff := r.initialBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		res, err := r.inner.Insert(ctx, args, opts)
		if err == nil {
			return res, nil
		}

		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		sleep := jitter(backoff)
		r.logger.Warn("job enqueue failed, retrying after backoff",
			"kind", args.Kind(),
			"attempt", attempt+1,
			"max_attempts", r.maxRetries+1,
			"backoff", sleep,
			"error", err,
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("backoff interrupted: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = min(backoff*backoffMultiplier, r.maxBackoff)
	}

	return nil, lastErr
}

// jitter returns a duration between 50% and 100% of d.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	//nolint:gosec // G115: the modulo result is in [0, half), which fits in int64
	return half + time.Duration(binary.BigEndian.Uint64(buf[:])%uint64(half))
}

var _ JobInserter = (*RetryingJobInserter)(nil)
