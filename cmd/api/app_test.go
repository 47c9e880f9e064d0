package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/api/handlers"
	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/models"
)

const testAPIKey = "test-api-key-12345"

type stubRecommender struct {
	got models.RecommendationQuery
}

func (s *stubRecommender) Recommend(_ context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error) {
	s.got = q

	return &models.RecommendationResponse{
		Recommendations:   []models.Recommendation{},
		SearchDescription: q.Description,
	}, nil
}

type stubMovies struct {
	filterOptionsCalls int
	getCalls           int
}

func (s *stubMovies) GetMovie(_ context.Context, id uuid.UUID) (*models.Movie, error) {
	s.getCalls++

	return &models.Movie{ID: id, Title: "Heat"}, nil
}

func (s *stubMovies) ListMovies(_ context.Context, _ *models.ListMoviesFilters) (*models.ListMoviesResponse, error) {
	return &models.ListMoviesResponse{}, nil
}

func (s *stubMovies) FilterOptions(_ context.Context) (*models.MovieFilterOptions, error) {
	s.filterOptionsCalls++

	return &models.MovieFilterOptions{}, nil
}

type stubEnqueuer struct{}

func (stubEnqueuer) Enqueue(_ context.Context, _ int) (*models.BackfillResponse, error) {
	return &models.BackfillResponse{Status: "queued", JobID: 7}, nil
}

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type testServer struct {
	*httptest.Server

	recommender *stubRecommender
	movies      *stubMovies
}

// setupTestServer serves the production router and handler chain over stubbed services.
func setupTestServer(t *testing.T, metricsHandler http.Handler) *testServer {
	t.Helper()

	cfg := &config.Config{APIKey: testAPIKey, Port: "0", MaxBodyBytes: 1 << 10}
	recommender := &stubRecommender{}
	movies := &stubMovies{}

	router := newRouter(routerParams{
		cfg:             cfg,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		metricsHandler:  metricsHandler,
		health:          handlers.NewHealthHandler(stubPinger{}),
		recommendations: handlers.NewRecommendationsHandler(recommender),
		movies:          handlers.NewMoviesHandler(movies),
		admin:           handlers.NewAdminHandler(stubEnqueuer{}),
	})

	server := httptest.NewServer(newHTTPServer(cfg, router).Handler)
	t.Cleanup(server.Close)

	return &testServer{Server: server, recommender: recommender, movies: movies}
}

func (s *testServer) do(t *testing.T, method, path, body string, authorized bool) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, s.URL+path, reader)
	require.NoError(t, err)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	ready := server.do(t, http.MethodGet, "/ready", "", false)
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}

func TestProtectedRoutesRequireAPIKey(t *testing.T) {
	server := setupTestServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/v1/recommendations"},
		{http.MethodGet, "/v1/movies"},
		{http.MethodGet, "/v1/movies/filter-options"},
		{http.MethodPost, "/v1/admin/embeddings/backfill"},
	} {
		resp := server.do(t, tc.method, tc.path, "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
	}
}

func TestRecommendationsRoute(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, http.MethodPost, "/v1/recommendations",
		`{"description":"slow-burn heist thriller","limit":5,"page":2,"genres":["Crime"]}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.RecommendationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "slow-burn heist thriller", out.SearchDescription)

	got := server.recommender.got
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, []string{"Crime"}, got.Filters.Genres)
}

func TestRecommendationsRoute_BodyTooLarge(t *testing.T) {
	server := setupTestServer(t, nil)

	body := `{"description":"` + strings.Repeat("a", 2<<10) + `"}`
	resp := server.do(t, http.MethodPost, "/v1/recommendations", body, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMovieRoutes(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, http.MethodGet, "/v1/movies/filter-options", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, server.movies.filterOptionsCalls)
	assert.Zero(t, server.movies.getCalls, "filter-options must not match /movies/{id}")

	id := uuid.New()
	resp = server.do(t, http.MethodGet, "/v1/movies/"+id.String(), "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var movie models.Movie
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&movie))
	assert.Equal(t, "Heat", movie.Title)
}

func TestBackfillRoute(t *testing.T) {
	server := setupTestServer(t, nil)

	resp := server.do(t, http.MethodPost, "/v1/admin/embeddings/backfill", "", true)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	t.Run("served when enabled", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		})
		server := setupTestServer(t, metrics)

		resp := server.do(t, http.MethodGet, "/metrics", "", false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("absent when disabled", func(t *testing.T) {
		server := setupTestServer(t, nil)

		resp := server.do(t, http.MethodGet, "/metrics", "", false)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
