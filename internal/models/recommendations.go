package models

import "github.com/google/uuid"

// CandidateMovie is a movie returned by vector retrieval with the index's similarity score.
// It lives for the duration of one recommendation request.
type CandidateMovie struct {
	Movie

	SimilarityScore float64 `json:"similarityScore"`
}

// MovieSummary is the lean projection handed to the reranker.
type MovieSummary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Year       *int      `json:"year,omitempty"`
	Plot       string    `json:"plot,omitempty"`
	Genres     []string  `json:"genres"`
	Directors  []string  `json:"directors,omitempty"`
	Rated      *string   `json:"rated,omitempty"`
	IMDbRating *float64  `json:"imdbRating,omitempty"`
}

// Summary projects a candidate to its summary.
func (c CandidateMovie) Summary() MovieSummary {
	s := MovieSummary{
		ID:        c.ID,
		Title:     c.Title,
		Year:      c.Year,
		Plot:      c.Plot,
		Genres:    c.Genres,
		Directors: c.Directors,
		Rated:     c.Rated,
	}

	if s.Plot == "" {
		s.Plot = c.FullPlot
	}

	if c.IMDb != nil {
		rating := c.IMDb.Rating
		s.IMDbRating = &rating
	}

	return s
}

// RankedRecommendation is a candidate after reranking.
// RelevanceScore is 0..100 and non-increasing along a ranked list.
type RankedRecommendation struct {
	Movie            MovieSummary `json:"movie"`
	SimilarityScore  float64      `json:"similarityScore"`
	RelevanceScore   int          `json:"relevanceScore"`
	Reason           string       `json:"reason"`
	MatchingElements []string     `json:"matchingElements,omitempty"`
	Rank             int          `json:"rank"`
}

// RecommendationQuery is the validated input of the orchestrator.
type RecommendationQuery struct {
	Description string
	Page        int
	Limit       int
	Filters     MovieFilters
}

// RecommendationRequest is the body of POST /v1/recommendations.
type RecommendationRequest struct {
	Description string   `json:"description" validate:"required,min=1,max=1000,no_null_bytes,not_blank"`
	Limit       *int     `json:"limit,omitempty" validate:"omitempty,min=1"`
	Page        *int     `json:"page,omitempty" validate:"omitempty,min=1"`
	Genres      []string `json:"genres,omitempty" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
	Rated       *string  `json:"rated,omitempty" validate:"omitempty,min=1,max=20,no_null_bytes"`
	YearFrom    *int     `json:"yearFrom,omitempty" validate:"omitempty,gte=1850,lte=2200"`
	YearTo      *int     `json:"yearTo,omitempty" validate:"omitempty,gte=1850,lte=2200"`
	Languages   []string `json:"languages,omitempty" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
	Countries   []string `json:"countries,omitempty" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
}

// Default pagination of a recommendation request.
const (
	DefaultRecommendationLimit = 10
	DefaultRecommendationPage  = 1
)

// ToQuery applies defaults and maps the request to a RecommendationQuery.
func (r RecommendationRequest) ToQuery() RecommendationQuery {
	q := RecommendationQuery{
		Description: r.Description,
		Page:        DefaultRecommendationPage,
		Limit:       DefaultRecommendationLimit,
		Filters: MovieFilters{
			Genres:    r.Genres,
			Rated:     r.Rated,
			YearFrom:  r.YearFrom,
			YearTo:    r.YearTo,
			Languages: r.Languages,
			Countries: r.Countries,
		},
	}

	if r.Limit != nil {
		q.Limit = *r.Limit
	}

	if r.Page != nil {
		q.Page = *r.Page
	}

	return q
}

// Recommendation is one item of the response: the full movie, a 0..1 similarity
// derived from the relevance score, and a human-readable reason.
type Recommendation struct {
	Movie      Movie   `json:"movie"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// RecommendationResponse is the envelope returned by POST /v1/recommendations.
type RecommendationResponse struct {
	Recommendations   []Recommendation `json:"recommendations"`
	TotalCount        int              `json:"totalCount"`
	HasMore           bool             `json:"hasMore"`
	SearchDescription string           `json:"searchDescription"`
}

// BackfillRequest is the body of POST /v1/admin/embeddings/backfill.
type BackfillRequest struct {
	BatchSize *int `json:"batchSize,omitempty" validate:"omitempty,min=1,max=500"`
}

// BackfillResponse acknowledges a queued backfill.
type BackfillResponse struct {
	Status    string `json:"status"`
	JobID     int64  `json:"jobId,omitempty"`
	BatchSize int    `json:"batchSize"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// BackfillResult summarises one backfill run.
type BackfillResult struct {
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}
