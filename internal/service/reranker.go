package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
	"github.com/filmgrid/hub/internal/observability"
)

// Relevance scores.
const (
	topRankScore    = 95
	rankScoreStep   = 5
	minRankedScore  = 20
	maxRankedScore  = 100
	unrankedScore   = 15
	explanationMax  = 400
	defaultEnrichAt = 70
)

// positionScore is the synthetic relevance for 0-based rank: strictly decreasing, floored at 20.
func positionScore(rank int) int {
	return max(topRankScore-rankScoreStep*rank, minRankedScore)
}

// Reranker reorders candidates by asking a text generator for a relevance ranking.
// Rank never fails: a failed call or unparseable response falls back to similarity order.
type Reranker struct {
	generator       TextGenerator
	mode            RerankMode
	enrich          bool
	enrichThreshold int
	metrics         observability.RecommendationMetrics
	logger          *slog.Logger
}

// RerankerParams configures Reranker. A nil Generator makes every Rank a similarity fallback.
// Zero EnrichThreshold defaults to 70. Metrics may be nil.
type RerankerParams struct {
	Generator          TextGenerator
	Mode               RerankMode
	EnrichExplanations bool
	EnrichThreshold    int
	Metrics            observability.RecommendationMetrics
	Logger             *slog.Logger
}

// NewReranker creates a Reranker. Unknown modes fall back to fast.
func NewReranker(p RerankerParams) *Reranker {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode := p.Mode
	if mode != RerankModeDetailed {
		mode = RerankModeFast
	}

	threshold := p.EnrichThreshold
	if threshold <= 0 {
		threshold = defaultEnrichAt
	}

	return &Reranker{
		generator:       p.Generator,
		mode:            mode,
		enrich:          p.EnrichExplanations,
		enrichThreshold: threshold,
		metrics:         p.Metrics,
		logger:          logger,
	}
}

// Rank returns every candidate exactly once, ordered by relevance to query with non-increasing scores.
// The generator is called once for the whole candidate list.
func (r *Reranker) Rank(ctx context.Context, query string, candidates []models.CandidateMovie) []models.RankedRecommendation {
	if len(candidates) == 0 {
		return []models.RankedRecommendation{}
	}

	if r.generator == nil {
		r.recordOutcome(ctx, "fallback_call")

		return r.FallbackRank(candidates)
	}

	response, err := r.generator.Generate(ctx, buildRankingPrompt(query, candidates, r.mode))
	if err != nil {
		r.logger.Warn("rerank: generation failed, using similarity order",
			"error", err, "candidates", len(candidates), "mode", string(r.mode))
		r.recordOutcome(ctx, "fallback_call")

		return r.FallbackRank(candidates)
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[normalizeID(c.ID.String())] = true
	}

	entries, err := ParseRanking(response, r.mode, known)
	if err == nil && !mentionsKnown(entries, known) {
		err = huberrors.NewParseError("ranking response names none of the candidates", nil)
	}

	if err != nil {
		r.logger.Warn("rerank: unparseable response, using similarity order",
			"error", err, "candidates", len(candidates), "mode", string(r.mode), "response_len", len(response))
		r.logger.Debug("rerank: raw response", "response", response)
		r.recordOutcome(ctx, "fallback_parse")

		return r.FallbackRank(candidates)
	}

	ranked := assembleRanking(candidates, entries)
	r.recordOutcome(ctx, "ranked")

	r.logger.Debug("rerank: completed", "candidates", len(candidates), "mentioned", len(entries))

	return ranked
}

// FallbackRank orders candidates by descending similarity (stable, so ties keep input order)
// and assigns position scores with generic reasons.
func (r *Reranker) FallbackRank(candidates []models.CandidateMovie) []models.RankedRecommendation {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b models.CandidateMovie) int {
		return cmp.Compare(b.SimilarityScore, a.SimilarityScore)
	})

	out := make([]models.RankedRecommendation, len(sorted))
	for i, c := range sorted {
		out[i] = newRanked(c)
		out[i].RelevanceScore = positionScore(i)
		out[i].Rank = i + 1
		out[i].Reason = fallbackReason(i+1, c.Genres)
	}

	return out
}

// Enrich replaces the reason of items scoring above the threshold with a one-sentence
// explanation, one generation call per item. Failures keep the short reason.
func (r *Reranker) Enrich(ctx context.Context, query string, page []models.RankedRecommendation) {
	if !r.enrich || r.generator == nil {
		return
	}

	for i := range page {
		if page[i].RelevanceScore <= r.enrichThreshold {
			continue
		}

		if ctx.Err() != nil {
			return
		}

		text, err := r.generator.Generate(ctx, buildExplanationPrompt(query, page[i]))
		if err != nil {
			r.logger.Debug("rerank: explanation failed, keeping short reason", "movie_id", page[i].Movie.ID, "error", err)

			continue
		}

		if sentence := cleanExplanation(text); sentence != "" {
			page[i].Reason = sentence
		}
	}
}

func (r *Reranker) recordOutcome(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordRerankOutcome(ctx, outcome)
	}
}

// assembleRanking maps parsed entries onto candidates. Unknown and repeated IDs are dropped;
// candidates the response never mentioned are appended in input order with the unranked score.
func assembleRanking(candidates []models.CandidateMovie, entries []RankingEntry) []models.RankedRecommendation {
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		index[normalizeID(c.ID.String())] = i
	}

	used := make([]bool, len(candidates))
	ranked := make([]models.RankedRecommendation, 0, len(candidates))
	scores := make([]*int, 0, len(candidates))
	firstScore := -1

	for _, e := range entries {
		i, ok := index[normalizeID(e.ID)]
		if !ok || used[i] {
			continue
		}

		used[i] = true

		rec := newRanked(candidates[i])
		rec.MatchingElements = e.MatchingElements
		rec.Reason = e.Explanation

		if e.Score != nil && firstScore < 0 {
			firstScore = len(ranked)
		}

		ranked = append(ranked, rec)
		scores = append(scores, e.Score)
	}

	if firstScore < 0 {
		for i := range ranked {
			ranked[i].RelevanceScore = positionScore(i)
		}
	} else {
		// Unscored entries tie with their scored predecessor (leading ones with the first score),
		// so the stable sort keeps them where the model placed them.
		prev := clampScore(*scores[firstScore])
		for i := range ranked {
			if scores[i] != nil {
				prev = clampScore(*scores[i])
			}

			ranked[i].RelevanceScore = prev
		}

		slices.SortStableFunc(ranked, func(a, b models.RankedRecommendation) int {
			return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
		})
	}

	for i, c := range candidates {
		if used[i] {
			continue
		}

		rec := newRanked(c)
		rec.RelevanceScore = unrankedScore
		ranked = append(ranked, rec)
	}

	for i := range ranked {
		ranked[i].Rank = i + 1
		if ranked[i].Reason == "" {
			ranked[i].Reason = rankedReason(i+1, ranked[i].RelevanceScore, ranked[i].Movie.Genres)
		}
	}

	return ranked
}

func mentionsKnown(entries []RankingEntry, known map[string]bool) bool {
	for _, e := range entries {
		if known[normalizeID(e.ID)] {
			return true
		}
	}

	return false
}

func clampScore(score int) int {
	return min(max(score, minRankedScore), maxRankedScore)
}

func newRanked(c models.CandidateMovie) models.RankedRecommendation {
	return models.RankedRecommendation{
		Movie:           c.Summary(),
		SimilarityScore: c.SimilarityScore,
	}
}

// cleanExplanation trims quotes and whitespace and caps the length of a generated explanation.
func cleanExplanation(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	s = strings.Trim(s, `"'`)

	return truncateRunes(s, explanationMax)
}
