package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/repository"
)

const vectorIndexService = "vector-index"

// VectorSearcher runs the nearest-neighbour query against the vector index.
type VectorSearcher interface {
	NearestMovies(
		ctx context.Context, queryVector []float32, limit int, filters models.MovieFilters, exact bool,
	) ([]models.CandidateMovie, error)
}

// Retriever fetches candidate movies for a query vector through a circuit breaker.
// Consecutive index failures open the breaker; while open, Retrieve fails fast with an
// error that matches repository.ErrVectorIndexUnavailable.
type Retriever struct {
	searcher VectorSearcher
	exact    bool
	breaker  *gobreaker.CircuitBreaker[[]models.CandidateMovie]
	logger   *slog.Logger
}

// RetrieverParams configures Retriever. Zero FailureThreshold defaults to 5, zero OpenTimeout to 30s.
type RetrieverParams struct {
	Searcher         VectorSearcher
	Exact            bool
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Logger           *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(p RetrieverParams) *Retriever {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := p.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	timeout := p.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        vectorIndexService,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("retriever: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Caller cancellations say nothing about index health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Retriever{
		searcher: p.Searcher,
		exact:    p.Exact,
		breaker:  gobreaker.NewCircuitBreaker[[]models.CandidateMovie](settings),
		logger:   logger,
	}
}

// Retrieve returns up to limit candidates ordered by descending similarity.
// Zero matches is an empty slice, not an error. Index failures are UpstreamErrors.
func (r *Retriever) Retrieve(
	ctx context.Context, queryVector []float32, limit int, filters models.MovieFilters,
) ([]models.CandidateMovie, error) {
	if limit <= 0 {
		return nil, huberrors.NewInvalidArgumentError("limit", "retrieve limit must be positive")
	}

	candidates, err := r.breaker.Execute(func() ([]models.CandidateMovie, error) {
		return r.searcher.NearestMovies(ctx, queryVector, limit, filters, r.exact)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", repository.ErrVectorIndexUnavailable, err)
		}

		return nil, huberrors.NewUpstreamError(vectorIndexService, "nearest neighbour query failed", err)
	}

	if candidates == nil {
		candidates = []models.CandidateMovie{}
	}

	return candidates, nil
}
