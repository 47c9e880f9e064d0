package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmgrid/hub/internal/models"
)

// Movie listing defaults.
const (
	defaultMovieListLimit = 20
	maxMovieListLimit     = 100
)

// MoviesRepository defines the read operations on the movie catalogue.
type MoviesRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	List(ctx context.Context, filters *models.ListMoviesFilters) ([]models.Movie, error)
	Count(ctx context.Context, filters *models.ListMoviesFilters) (int64, error)
	GetFilterOptions(ctx context.Context) (*models.MovieFilterOptions, error)
}

// MoviesService handles catalogue browsing.
type MoviesService struct {
	repo MoviesRepository
}

// NewMoviesService creates a new movies service.
func NewMoviesService(repo MoviesRepository) *MoviesService {
	return &MoviesService{repo: repo}
}

// GetMovie retrieves a single movie by ID.
func (s *MoviesService) GetMovie(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	return s.repo.GetByID(ctx, id)
}

// ListMovies retrieves a page of movies in the requested order (most voted first by default).
func (s *MoviesService) ListMovies(ctx context.Context, filters *models.ListMoviesFilters) (*models.ListMoviesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultMovieListLimit
	}

	if filters.Limit > maxMovieListLimit {
		filters.Limit = maxMovieListLimit
	}

	movies, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	if movies == nil {
		movies = []models.Movie{}
	}

	return &models.ListMoviesResponse{
		Data:   movies,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// FilterOptions returns the distinct genres, ratings, languages, countries and year range.
func (s *MoviesService) FilterOptions(ctx context.Context) (*models.MovieFilterOptions, error) {
	return s.repo.GetFilterOptions(ctx)
}
