package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/observability"
	"github.com/filmgrid/hub/internal/repository"
	"github.com/filmgrid/hub/pkg/cache"
)

// RankingCacheName labels ranking cache hits and misses.
const RankingCacheName = "ranking"

// Retrieval sizing defaults.
const (
	defaultRetrievalAmplification = 3
	defaultRetrievalFloor         = 10
	defaultMaxRecommendationLimit = 50
)

// Pipeline stages reported by RecommendationFailedError.
const (
	stageEmbed    = "embed"
	stageRetrieve = "retrieve"
	stageFallback = "fallback"
)

// CandidateRetriever fetches nearest-neighbour candidates for a query vector.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, queryVector []float32, limit int, filters models.MovieFilters) ([]models.CandidateMovie, error)
}

// RelevanceRanker reorders candidates; implemented by Reranker.
type RelevanceRanker interface {
	Rank(ctx context.Context, query string, candidates []models.CandidateMovie) []models.RankedRecommendation
	FallbackRank(candidates []models.CandidateMovie) []models.RankedRecommendation
	Enrich(ctx context.Context, query string, page []models.RankedRecommendation)
}

// DegradedRetriever produces candidates without the vector index; implemented by LocalRanker.
type DegradedRetriever interface {
	Candidates(ctx context.Context, queryVector []float32, filters models.MovieFilters) ([]models.CandidateMovie, error)
}

// RankingResult is the full ranked list for one (description, filters) pair together with the
// candidates it was ranked from, so a page can be merged back to full movie records.
type RankingResult struct {
	Ranked     []models.RankedRecommendation `json:"ranked"`
	Candidates []models.CandidateMovie       `json:"candidates"`
	Degraded   bool                          `json:"degraded"`
}

// RankingKey identifies a cacheable ranking. OverFetch is part of the key because it bounds
// the length of the ranked list.
type RankingKey struct {
	Description string              `json:"d"`
	Filters     models.MovieFilters `json:"f"`
	OverFetch   int                 `json:"n"`
}

// String is the cache key: the JSON encoding of the key.
func (k RankingKey) String() string {
	b, err := json.Marshal(k)
	if err != nil {
		return k.Description
	}

	return string(b)
}

// RecommendationService turns a free-text description into a page of ranked movie recommendations:
// embed, retrieve, rerank, paginate, merge.
type RecommendationService struct {
	embedder         EmbeddingClient
	retriever        CandidateRetriever
	ranker           RelevanceRanker
	fallback         DegradedRetriever
	amplification    int
	floor            int
	maxLimit         int
	rankingCache     *cache.LoaderCache[RankingKey, RankingResult]
	metrics          observability.RecommendationMetrics
	embeddingMetrics observability.EmbeddingMetrics
	cacheMetrics     observability.CacheMetrics
	logger           *slog.Logger
}

// RecommendationServiceParams configures RecommendationService.
// Fallback, RankingCache and all metrics may be nil. Zero sizing values use the defaults (3, 10, 50).
type RecommendationServiceParams struct {
	EmbeddingClient        EmbeddingClient
	Retriever              CandidateRetriever
	Ranker                 RelevanceRanker
	Fallback               DegradedRetriever
	RetrievalAmplification int
	RetrievalFloor         int
	MaxLimit               int
	RankingCache           *cache.LoaderCache[RankingKey, RankingResult]
	Metrics                observability.RecommendationMetrics
	EmbeddingMetrics       observability.EmbeddingMetrics
	CacheMetrics           observability.CacheMetrics
	Logger                 *slog.Logger
}

// NewRecommendationService creates a RecommendationService.
func NewRecommendationService(p RecommendationServiceParams) *RecommendationService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RecommendationService{
		embedder:         p.EmbeddingClient,
		retriever:        p.Retriever,
		ranker:           p.Ranker,
		fallback:         p.Fallback,
		amplification:    positiveOr(p.RetrievalAmplification, defaultRetrievalAmplification),
		floor:            positiveOr(p.RetrievalFloor, defaultRetrievalFloor),
		maxLimit:         positiveOr(p.MaxLimit, defaultMaxRecommendationLimit),
		rankingCache:     p.RankingCache,
		metrics:          p.Metrics,
		embeddingMetrics: p.EmbeddingMetrics,
		cacheMetrics:     p.CacheMetrics,
		logger:           logger,
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}

	return def
}

// OverFetchLimit is how many candidates to retrieve for a page of limit items.
func (s *RecommendationService) OverFetchLimit(limit int) int {
	return max(limit*s.amplification, s.floor)
}

// Recommend returns one page of recommendations for q.
// Only embedding and retrieval failures are errors (RecommendationFailedError); reranking and
// enrichment degrade instead. Invalid pagination is an InvalidArgumentError raised before any upstream call.
func (s *RecommendationService) Recommend(ctx context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error) {
	start := time.Now()

	q.Description = strings.TrimSpace(q.Description)
	if err := s.validate(q); err != nil {
		s.recordOutcome(ctx, "invalid", start)

		return nil, err
	}

	result, err := s.ranking(ctx, q)
	if err != nil {
		s.recordOutcome(ctx, "failed", start)
		s.logger.Error("recommend: failed", "error", err, "limit", q.Limit, "page", q.Page)

		return nil, err
	}

	page, hasMore := paginate(result.Ranked, q.Page, q.Limit)
	if !result.Degraded {
		s.ranker.Enrich(ctx, q.Description, page)
	}

	resp := &models.RecommendationResponse{
		Recommendations:   mergeMovies(page, result.Candidates),
		TotalCount:        len(result.Ranked),
		HasMore:           hasMore,
		SearchDescription: q.Description,
	}

	switch {
	case result.Degraded:
		s.recordOutcome(ctx, "degraded", start)
	case len(result.Ranked) == 0:
		s.recordOutcome(ctx, "empty", start)
	default:
		s.recordOutcome(ctx, "ok", start)
	}

	s.logger.Info("recommend: completed",
		"returned", len(resp.Recommendations), "total", resp.TotalCount, "page", q.Page,
		"has_more", resp.HasMore, "degraded", result.Degraded, "duration_ms", time.Since(start).Milliseconds())

	return resp, nil
}

func (s *RecommendationService) validate(q models.RecommendationQuery) error {
	if q.Description == "" {
		return huberrors.NewInvalidArgumentError("description", "description is required")
	}

	if q.Limit < 1 || q.Limit > s.maxLimit {
		return huberrors.NewInvalidArgumentError("limit", fmt.Sprintf("limit must be between 1 and %d", s.maxLimit))
	}

	if q.Page < 1 {
		return huberrors.NewInvalidArgumentError("page", "page must be at least 1")
	}

	f := q.Filters
	if f.YearFrom != nil && f.YearTo != nil && *f.YearFrom > *f.YearTo {
		return huberrors.NewInvalidArgumentError("yearFrom", "yearFrom must not be after yearTo")
	}

	return nil
}

// ranking returns the full ranked list, from the ranking cache when one is configured.
func (s *RecommendationService) ranking(ctx context.Context, q models.RecommendationQuery) (RankingResult, error) {
	if s.rankingCache == nil {
		return s.computeRanking(ctx, q)
	}

	key := RankingKey{Description: q.Description, Filters: q.Filters, OverFetch: s.OverFetchLimit(q.Limit)}

	result, hit, err := s.rankingCache.GetWithStats(ctx, key, func(ctx context.Context, _ RankingKey) (RankingResult, error) {
		return s.computeRanking(ctx, q)
	})
	if err != nil {
		return RankingResult{}, err
	}

	if s.cacheMetrics != nil {
		if hit {
			s.cacheMetrics.RecordHit(ctx, RankingCacheName)
		} else {
			s.cacheMetrics.RecordMiss(ctx, RankingCacheName)
		}
	}

	// Degraded rankings are served once and recomputed on the next request.
	if result.Degraded {
		_ = s.rankingCache.Invalidate(ctx, key)
	}

	return result, nil
}

func (s *RecommendationService) computeRanking(ctx context.Context, q models.RecommendationQuery) (RankingResult, error) {
	vec, err := s.embedQuery(ctx, q.Description)
	if err != nil {
		return RankingResult{}, huberrors.NewRecommendationFailedError(stageEmbed, err)
	}

	overFetch := s.OverFetchLimit(q.Limit)

	candidates, err := s.retriever.Retrieve(ctx, vec, overFetch, q.Filters)
	if err != nil {
		if errors.Is(err, repository.ErrVectorIndexUnavailable) && s.fallback != nil {
			s.logger.Warn("recommend: vector index unavailable, using local similarity", "error", err)

			return s.degradedRanking(ctx, vec, q.Filters)
		}

		return RankingResult{}, huberrors.NewRecommendationFailedError(stageRetrieve, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCandidates(ctx, len(candidates))
	}

	if len(candidates) == 0 {
		return RankingResult{Ranked: []models.RankedRecommendation{}, Candidates: []models.CandidateMovie{}}, nil
	}

	return RankingResult{
		Ranked:     s.ranker.Rank(ctx, q.Description, candidates),
		Candidates: candidates,
	}, nil
}

func (s *RecommendationService) degradedRanking(
	ctx context.Context, vec []float32, filters models.MovieFilters,
) (RankingResult, error) {
	candidates, err := s.fallback.Candidates(ctx, vec, filters)
	if err != nil {
		return RankingResult{}, huberrors.NewRecommendationFailedError(stageFallback, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCandidates(ctx, len(candidates))
	}

	return RankingResult{
		Ranked:     s.ranker.FallbackRank(candidates),
		Candidates: candidates,
		Degraded:   true,
	}, nil
}

func (s *RecommendationService) embedQuery(ctx context.Context, description string) ([]float32, error) {
	start := time.Now()

	vec, err := s.embedder.CreateEmbedding(ctx, description)

	status := "success"
	if err != nil {
		status = "failed"
	}

	if s.embeddingMetrics != nil {
		s.embeddingMetrics.RecordEmbedding(ctx, "query", status, time.Since(start))
	}

	return vec, err
}

func (s *RecommendationService) recordOutcome(ctx context.Context, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordRecommendation(ctx, outcome, time.Since(start))
	}
}

// paginate returns a copy of the requested 1-based page of ranked and whether items follow it.
// A page past the end is empty with hasMore false.
func paginate(ranked []models.RankedRecommendation, page, limit int) ([]models.RankedRecommendation, bool) {
	total := len(ranked)
	pages := (total + limit - 1) / limit

	if page-1 >= pages {
		return []models.RankedRecommendation{}, false
	}

	skip := (page - 1) * limit
	end := min(skip+limit, total)

	out := make([]models.RankedRecommendation, end-skip)
	copy(out, ranked[skip:end])

	return out, skip+len(out) < total
}

// mergeMovies attaches the full movie record of each ranked item, looked up by id among candidates.
func mergeMovies(page []models.RankedRecommendation, candidates []models.CandidateMovie) []models.Recommendation {
	byID := make(map[uuid.UUID]models.Movie, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c.Movie
	}

	out := make([]models.Recommendation, 0, len(page))

	for _, r := range page {
		movie, ok := byID[r.Movie.ID]
		if !ok {
			movie = models.Movie{
				ID:        r.Movie.ID,
				Title:     r.Movie.Title,
				Plot:      r.Movie.Plot,
				Genres:    r.Movie.Genres,
				Directors: r.Movie.Directors,
				Rated:     r.Movie.Rated,
				Year:      r.Movie.Year,
			}
		}

		out = append(out, models.Recommendation{
			Movie:      movie,
			Similarity: float64(r.RelevanceScore) / 100,
			Reason:     r.Reason,
		})
	}

	return out
}
