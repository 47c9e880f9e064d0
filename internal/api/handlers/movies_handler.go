package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/filmgrid/hub/internal/api/response"
	"github.com/filmgrid/hub/internal/api/validation"
	"github.com/filmgrid/hub/internal/models"
)

// MoviesService defines the catalogue operations used by the handler.
type MoviesService interface {
	GetMovie(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	ListMovies(ctx context.Context, filters *models.ListMoviesFilters) (*models.ListMoviesResponse, error)
	FilterOptions(ctx context.Context) (*models.MovieFilterOptions, error)
}

// MoviesHandler handles HTTP requests for the movie catalogue.
type MoviesHandler struct {
	service MoviesService
}

// NewMoviesHandler creates a new movies handler.
func NewMoviesHandler(service MoviesService) *MoviesHandler {
	return &MoviesHandler{service: service}
}

// List handles GET /v1/movies
// @Summary List movies with filters
// @Param genres query []string false "Any of these genres"
// @Param rated query string false "Exact rating"
// @Param yearFrom query int false "Earliest year (inclusive)"
// @Param yearTo query int false "Latest year (inclusive)"
// @Param title query string false "Case-insensitive title substring"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Rows to skip"
// @Success 200 {object} models.ListMoviesResponse
// @Security BearerAuth
// @Router /v1/movies [get]
func (h *MoviesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListMoviesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	resp, err := h.service.ListMovies(r.Context(), filters)
	if err != nil {
		response.RespondServiceError(r.Context(), w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/movies/{id}
// @Summary Get a movie by ID
// @Success 200 {object} models.Movie
// @Failure 400 {object} response.ProblemDetails "Invalid UUID format"
// @Failure 404 {object} response.ProblemDetails "Movie not found"
// @Security BearerAuth
// @Router /v1/movies/{id} [get]
func (h *MoviesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")

		return
	}

	movie, err := h.service.GetMovie(r.Context(), id)
	if err != nil {
		response.RespondServiceError(r.Context(), w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, movie)
}

// FilterOptions handles GET /v1/movies/filter-options.
func (h *MoviesHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context())
	if err != nil {
		response.RespondServiceError(r.Context(), w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, opts)
}
