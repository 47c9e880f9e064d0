package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/api/response"
	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/models"
)

type mockRecommendationService struct {
	recommendFunc func(ctx context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error)
	calls         int
}

func (m *mockRecommendationService) Recommend(ctx context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error) {
	m.calls++

	return m.recommendFunc(ctx, q)
}

func postRecommendation(t *testing.T, svc RecommendationService, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/recommendations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	NewRecommendationsHandler(svc).Recommend(rec, req)

	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) response.ProblemDetails {
	t.Helper()

	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem response.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))

	return problem
}

func TestRecommendationsHandler_Recommend(t *testing.T) {
	t.Run("applies defaults and returns the page", func(t *testing.T) {
		var got models.RecommendationQuery

		svc := &mockRecommendationService{recommendFunc: func(_ context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error) {
			got = q

			return &models.RecommendationResponse{
				Recommendations: []models.Recommendation{{
					Movie:      models.Movie{Title: "Toy Story"},
					Similarity: 0.95,
					Reason:     "Top 1 • Perfect Match",
				}},
				TotalCount:        1,
				SearchDescription: q.Description,
			}, nil
		}}

		rec := postRecommendation(t, svc, `{"description":"toys that come alive","genres":["Animation"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, 1, got.Page)
		assert.Equal(t, 10, got.Limit)
		assert.Equal(t, []string{"Animation"}, got.Filters.Genres)

		var resp models.RecommendationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Recommendations, 1)
		assert.Equal(t, "Toy Story", resp.Recommendations[0].Movie.Title)
		assert.InDelta(t, 0.95, resp.Recommendations[0].Similarity, 1e-9)
	})

	t.Run("validation errors never reach the service", func(t *testing.T) {
		svc := &mockRecommendationService{}

		for _, body := range []string{
			`{"description":"   "}`,
			`{"description":"drama","page":0}`,
			`{"description":"drama","yearFrom":2000,"yearTo":1990}`,
			`{"limit":5}`,
		} {
			rec := postRecommendation(t, svc, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, "Validation Error", decodeProblem(t, rec).Title)
		}

		assert.Zero(t, svc.calls)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postRecommendation(t, &mockRecommendationService{}, `{"description":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	errorCases := []struct {
		name string
		err  error
		want int
	}{
		{"limit above max", huberrors.NewInvalidArgumentError("limit", "limit must be between 1 and 50"), http.StatusBadRequest},
		{
			"embedding failed",
			huberrors.NewRecommendationFailedError("embed", huberrors.NewUpstreamError("mistral", "status 500", nil)),
			http.StatusBadGateway,
		},
		{
			"missing credentials",
			huberrors.NewRecommendationFailedError("embed", huberrors.NewConfigurationError("MISTRAL_API_KEY", "missing")),
			http.StatusServiceUnavailable,
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRecommendationService{recommendFunc: func(context.Context, models.RecommendationQuery) (*models.RecommendationResponse, error) {
				return nil, tt.err
			}}

			rec := postRecommendation(t, svc, `{"description":"space opera","limit":5}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want, decodeProblem(t, rec).Status)
		})
	}
}

type mockMoviesService struct {
	movie   *models.Movie
	err     error
	filters *models.ListMoviesFilters
}

func (m *mockMoviesService) GetMovie(_ context.Context, id uuid.UUID) (*models.Movie, error) {
	if m.err != nil {
		return nil, m.err
	}

	movie := *m.movie
	movie.ID = id

	return &movie, nil
}

func (m *mockMoviesService) ListMovies(_ context.Context, filters *models.ListMoviesFilters) (*models.ListMoviesResponse, error) {
	m.filters = filters

	return &models.ListMoviesResponse{Data: []models.Movie{}, Limit: filters.Limit}, m.err
}

func (m *mockMoviesService) FilterOptions(context.Context) (*models.MovieFilterOptions, error) {
	return &models.MovieFilterOptions{Genres: []string{"Drama"}}, m.err
}

func moviesRouter(svc MoviesService) http.Handler {
	h := NewMoviesHandler(svc)

	r := chi.NewRouter()
	r.Get("/v1/movies", h.List)
	r.Get("/v1/movies/filter-options", h.FilterOptions)
	r.Get("/v1/movies/{id}", h.Get)

	return r
}

func TestMoviesHandler(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		svc := &mockMoviesService{movie: &models.Movie{Title: "Heat"}}
		id := uuid.New()

		rec := httptest.NewRecorder()
		moviesRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies/"+id.String(), http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)

		var movie models.Movie
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movie))
		assert.Equal(t, id, movie.ID)
		assert.Equal(t, "Heat", movie.Title)
	})

	t.Run("get invalid id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		moviesRouter(&mockMoviesService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies/not-a-uuid", http.NoBody))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get not found", func(t *testing.T) {
		svc := &mockMoviesService{err: huberrors.NewNotFoundError("movie", "movie not found")}

		rec := httptest.NewRecorder()
		moviesRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies/"+uuid.NewString(), http.NoBody))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "movie not found", decodeProblem(t, rec).Detail)
	})

	t.Run("list decodes filters", func(t *testing.T) {
		svc := &mockMoviesService{}

		rec := httptest.NewRecorder()
		moviesRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies?genres=Western&rated=PG&limit=5", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.filters)
		assert.Equal(t, []string{"Western"}, svc.filters.Genres)
		assert.Equal(t, "PG", *svc.filters.Rated)
		assert.Equal(t, 5, svc.filters.Limit)
	})

	t.Run("list decodes sort", func(t *testing.T) {
		svc := &mockMoviesService{}

		rec := httptest.NewRecorder()
		moviesRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies?sortBy=year&sortOrder=desc", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.filters)
		assert.Equal(t, "year", svc.filters.SortBy)
		assert.Equal(t, "desc", svc.filters.SortOrder)
	})

	t.Run("list rejects unknown sort column", func(t *testing.T) {
		rec := httptest.NewRecorder()
		moviesRouter(&mockMoviesService{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/v1/movies?sortBy=plot", http.NoBody))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list rejects inverted year range", func(t *testing.T) {
		rec := httptest.NewRecorder()
		moviesRouter(&mockMoviesService{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/v1/movies?yearFrom=2000&yearTo=1990", http.NoBody))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("filter options", func(t *testing.T) {
		rec := httptest.NewRecorder()
		moviesRouter(&mockMoviesService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/movies/filter-options", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"Drama"`)
	})
}

type mockEnqueuer struct {
	batchSize int
	err       error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, batchSize int) (*models.BackfillResponse, error) {
	m.batchSize = batchSize
	if m.err != nil {
		return nil, m.err
	}

	return &models.BackfillResponse{Status: "queued", JobID: 9, BatchSize: max(batchSize, 10)}, nil
}

func TestAdminHandler_BackfillEmbeddings(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantBatch int
	}{
		{name: "empty body", body: "", wantCode: http.StatusAccepted, wantBatch: 0},
		{name: "explicit batch size", body: `{"batchSize":25}`, wantCode: http.StatusAccepted, wantBatch: 25},
		{name: "batch size too large", body: `{"batchSize":501}`, wantCode: http.StatusBadRequest},
		{name: "zero batch size", body: `{"batchSize":0}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"batchSize":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enq := &mockEnqueuer{batchSize: -1}

			rec := httptest.NewRecorder()
			NewAdminHandler(enq).BackfillEmbeddings(rec,
				httptest.NewRequest(http.MethodPost, "/v1/admin/embeddings/backfill", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantCode == http.StatusAccepted {
				assert.Equal(t, tt.wantBatch, enq.batchSize)

				var resp models.BackfillResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "queued", resp.Status)
				assert.Equal(t, int64(9), resp.JobID)
			} else {
				assert.Equal(t, -1, enq.batchSize, "enqueuer must not be called")
			}
		})
	}
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(mockPinger{}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(mockPinger{err: errors.New("down")}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
