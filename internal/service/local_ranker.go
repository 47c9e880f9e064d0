package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/observability"
	"github.com/filmgrid/hub/internal/repository"
	"github.com/filmgrid/hub/pkg/embeddings"
)

// Degraded path defaults.
const (
	defaultFallbackSampleSize = 50
	defaultFallbackTimeout    = 20 * time.Second
	localEmbedChunk           = 10
)

// MovieSampler returns movies matching structured filters only, with stored embeddings when present.
type MovieSampler interface {
	SampleMovies(ctx context.Context, filters models.MovieFilters, limit int) ([]repository.MovieWithEmbedding, error)
}

// LocalRanker is the degraded retrieval path used while the vector index is unavailable:
// it scores a bounded sample of movies by cosine similarity in process.
// Missing embeddings are computed on the fly, throttled by a rate limiter, within a time budget;
// movies that cannot be embedded in time are left out.
type LocalRanker struct {
	sampler    MovieSampler
	embedder   EmbeddingClient
	sampleSize int
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    observability.EmbeddingMetrics
	logger     *slog.Logger
}

// LocalRankerParams configures LocalRanker. EmbeddingRPS <= 0 means unthrottled. Metrics may be nil.
type LocalRankerParams struct {
	Sampler         MovieSampler
	EmbeddingClient EmbeddingClient
	SampleSize      int
	Timeout         time.Duration
	EmbeddingRPS    float64
	Metrics         observability.EmbeddingMetrics
	Logger          *slog.Logger
}

// NewLocalRanker creates a LocalRanker.
func NewLocalRanker(p LocalRankerParams) *LocalRanker {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	size := p.SampleSize
	if size <= 0 {
		size = defaultFallbackSampleSize
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultFallbackTimeout
	}

	limit := rate.Inf
	if p.EmbeddingRPS > 0 {
		limit = rate.Limit(p.EmbeddingRPS)
	}

	return &LocalRanker{
		sampler:    p.Sampler,
		embedder:   p.EmbeddingClient,
		sampleSize: size,
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    p.Metrics,
		logger:     logger,
	}
}

// Candidates returns sampled movies ordered by descending cosine similarity to queryVector.
// Only a failing sample query is an error.
func (l *LocalRanker) Candidates(
	ctx context.Context, queryVector []float32, filters models.MovieFilters,
) ([]models.CandidateMovie, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	sample, err := l.sampler.SampleMovies(ctx, filters, l.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample movies: %w", err)
	}

	vectors := make([][]float32, len(sample))

	var missing []int

	for i, m := range sample {
		if len(m.Embedding) > 0 {
			vectors[i] = m.Embedding
		} else {
			missing = append(missing, i)
		}
	}

	l.embedMissing(ctx, sample, missing, vectors)

	candidates := make([]models.CandidateMovie, 0, len(sample))

	for i, m := range sample {
		if vectors[i] == nil {
			continue
		}

		sim, err := embeddings.CosineSimilarity(queryVector, vectors[i])
		if err != nil {
			l.logger.Debug("local ranker: skipping movie with mismatched embedding", "movie_id", m.Movie.ID, "error", err)

			continue
		}

		candidates = append(candidates, models.CandidateMovie{Movie: m.Movie, SimilarityScore: sim})
	}

	slices.SortStableFunc(candidates, func(a, b models.CandidateMovie) int {
		return cmp.Compare(b.SimilarityScore, a.SimilarityScore)
	})

	l.logger.Info("local ranker: ranked sample",
		"sampled", len(sample), "embedded_on_the_fly", len(missing), "ranked", len(candidates))

	return candidates, nil
}

// embedMissing fills vectors[i] for each index in missing, chunk by chunk, until the budget runs out.
func (l *LocalRanker) embedMissing(
	ctx context.Context, sample []repository.MovieWithEmbedding, missing []int, vectors [][]float32,
) {
	if l.embedder == nil {
		return
	}

	for chunk := range slices.Chunk(missing, localEmbedChunk) {
		if err := l.limiter.Wait(ctx); err != nil {
			l.logger.Warn("local ranker: embedding budget exhausted", "remaining", len(missing), "error", err)

			return
		}

		texts := make([]string, len(chunk))
		for j, idx := range chunk {
			texts[j] = MovieEmbeddingText(sample[idx].Movie)
		}

		start := time.Now()

		vecs, err := l.embedder.CreateEmbeddings(ctx, texts)
		if err == nil && len(vecs) != len(chunk) {
			err = fmt.Errorf("got %d embeddings for %d movies", len(vecs), len(chunk))
		}

		if err != nil {
			l.recordEmbedding(ctx, "failed", time.Since(start))
			l.logger.Warn("local ranker: embedding chunk failed, skipping", "movies", len(chunk), "error", err)

			if ctx.Err() != nil {
				return
			}

			continue
		}

		l.recordEmbedding(ctx, "success", time.Since(start))

		for j, idx := range chunk {
			vectors[idx] = vecs[j]
		}
	}
}

func (l *LocalRanker) recordEmbedding(ctx context.Context, status string, d time.Duration) {
	if l.metrics != nil {
		l.metrics.RecordEmbedding(ctx, "sample", status, d)
	}
}
