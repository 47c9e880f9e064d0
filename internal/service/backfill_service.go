package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/observability"
)

// Backfill defaults.
const (
	DefaultBackfillBatchSize = 10
	defaultBackfillClaimTTL  = 10 * time.Minute
)

// EmbeddingBackfillStore claims movies without an embedding and persists computed embeddings.
// ClaimMoviesForEmbedding must be atomic: concurrent callers never receive the same movie
// unless its claim is older than staleBefore.
type EmbeddingBackfillStore interface {
	ClaimMoviesForEmbedding(ctx context.Context, limit int, staleBefore time.Time) ([]models.Movie, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, model string, embedding []float32) error
	CountMoviesWithoutEmbedding(ctx context.Context) (int64, error)
}

// BackfillService computes embeddings for every movie that has none, batch by batch.
type BackfillService struct {
	store      EmbeddingBackfillStore
	embedder   EmbeddingClient
	model      string
	batchDelay time.Duration
	claimTTL   time.Duration
	limiter    *rate.Limiter
	metrics    observability.EmbeddingMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// BackfillServiceParams configures BackfillService. Model is stored alongside each embedding.
// BatchDelay is the pause between batches (zero: none). Zero ClaimTTL defaults to 10 minutes.
// EmbeddingRPS caps embedding calls per second (zero or negative: unlimited). Metrics may be nil.
type BackfillServiceParams struct {
	Store           EmbeddingBackfillStore
	EmbeddingClient EmbeddingClient
	Model           string
	BatchDelay      time.Duration
	ClaimTTL        time.Duration
	EmbeddingRPS    float64
	Metrics         observability.EmbeddingMetrics
	Logger          *slog.Logger
}

// NewBackfillService creates a BackfillService.
func NewBackfillService(p BackfillServiceParams) *BackfillService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	claimTTL := p.ClaimTTL
	if claimTTL <= 0 {
		claimTTL = defaultBackfillClaimTTL
	}

	limit := rate.Inf
	if p.EmbeddingRPS > 0 {
		limit = rate.Limit(p.EmbeddingRPS)
	}

	return &BackfillService{
		store:      p.Store,
		embedder:   p.EmbeddingClient,
		model:      p.Model,
		batchDelay: max(p.BatchDelay, 0),
		claimTTL:   claimTTL,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    p.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Run claims and embeds batches of up to batchSize movies until a claim comes back empty.
// A movie that fails to embed or persist is logged and skipped; its claim is kept so this run
// does not pick it up again. Claim errors and context cancellation stop the run and return the
// progress so far.
func (s *BackfillService) Run(ctx context.Context, batchSize int) (models.BackfillResult, error) {
	var result models.BackfillResult

	if batchSize <= 0 {
		return result, huberrors.NewInvalidArgumentError("batchSize", "batch size must be positive")
	}

	if pending, err := s.store.CountMoviesWithoutEmbedding(ctx); err == nil {
		s.logger.Info("backfill: starting", "pending", pending, "batch_size", batchSize, "model", s.model)
	} else {
		s.logger.Warn("backfill: count pending movies failed", "error", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("backfill interrupted: %w", err)
		}

		claimed, err := s.store.ClaimMoviesForEmbedding(ctx, batchSize, s.now().Add(-s.claimTTL))
		if err != nil {
			return result, fmt.Errorf("claim movies: %w", err)
		}

		if len(claimed) == 0 {
			break
		}

		result.Batches++
		s.logger.Info("backfill: processing batch", "batch", result.Batches, "movies", len(claimed))

		for _, movie := range claimed {
			if err := s.embedMovie(ctx, movie); err != nil {
				if ctx.Err() != nil {
					return result, fmt.Errorf("backfill interrupted: %w", ctx.Err())
				}

				result.Failed++
				s.recordMovie(ctx, "failed")
				s.logger.Error("backfill: movie failed, skipping",
					"movie_id", movie.ID, "title", movie.Title, "error", err)

				continue
			}

			result.Processed++
			s.recordMovie(ctx, "embedded")

			if result.Processed%50 == 0 {
				s.logger.Info("backfill: progress", "processed", result.Processed, "failed", result.Failed)
			}
		}

		if err := s.pause(ctx); err != nil {
			return result, fmt.Errorf("backfill interrupted: %w", err)
		}
	}

	s.logger.Info("backfill: completed",
		"batches", result.Batches, "processed", result.Processed, "failed", result.Failed)

	return result, nil
}

func (s *BackfillService) embedMovie(ctx context.Context, movie models.Movie) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for embedding quota: %w", err)
	}

	start := time.Now()

	vec, err := s.embedder.CreateEmbedding(ctx, MovieEmbeddingText(movie))
	if err != nil {
		s.recordEmbedding(ctx, "failed", time.Since(start))

		return fmt.Errorf("create embedding: %w", err)
	}

	s.recordEmbedding(ctx, "success", time.Since(start))

	if err := s.store.UpdateEmbedding(ctx, movie.ID, s.model, vec); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}

	return nil
}

func (s *BackfillService) pause(ctx context.Context) error {
	if s.batchDelay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.batchDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *BackfillService) recordEmbedding(ctx context.Context, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordEmbedding(ctx, "backfill", status, d)
	}
}

func (s *BackfillService) recordMovie(ctx context.Context, status string) {
	if s.metrics != nil {
		s.metrics.RecordBackfillMovie(ctx, status)
	}
}
