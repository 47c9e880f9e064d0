package models

import (
	"time"

	"github.com/google/uuid"
)

// Movie is a catalog entry. The stored embedding is deliberately not part of this type
// and never leaves the repository layer.
type Movie struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	Plot      string          `json:"plot,omitempty"`
	FullPlot  string          `json:"fullplot,omitempty"`
	Genres    []string        `json:"genres"`
	Runtime   *int            `json:"runtime,omitempty"`
	Cast      []string        `json:"cast"`
	Directors []string        `json:"directors"`
	Poster    *string         `json:"poster,omitempty"`
	Languages []string        `json:"languages"`
	Countries []string        `json:"countries"`
	Released  *time.Time      `json:"released,omitempty"`
	Rated     *string         `json:"rated,omitempty"`
	Awards    *Awards         `json:"awards,omitempty"`
	IMDb      *IMDbRating     `json:"imdb,omitempty"`
	Tomatoes  *TomatoesRating `json:"tomatoes,omitempty"`
	Year      *int            `json:"year,omitempty"`
	Type      *string         `json:"type,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Awards summarises award wins and nominations.
type Awards struct {
	Wins        int    `json:"wins"`
	Nominations int    `json:"nominations"`
	Text        string `json:"text,omitempty"`
}

// IMDbRating is the IMDb aggregate score.
type IMDbRating struct {
	ID     *int    `json:"id,omitempty"`
	Rating float64 `json:"rating"`
	Votes  int     `json:"votes"`
}

// TomatoesRating holds Rotten Tomatoes viewer aggregates.
type TomatoesRating struct {
	Viewer *TomatoesViewer `json:"viewer,omitempty"`
}

// TomatoesViewer is the audience score block.
type TomatoesViewer struct {
	Rating     float64 `json:"rating"`
	NumReviews int     `json:"numReviews"`
	Meter      *int    `json:"meter,omitempty"`
}

// MovieFilters are structured predicates applied to retrieval, sampling and listing.
// Slices match on membership (any overlap); Rated is an exact match; the year range is inclusive.
type MovieFilters struct {
	Genres    []string `json:"genres,omitempty" form:"genres" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
	Rated     *string  `json:"rated,omitempty" form:"rated" validate:"omitempty,min=1,max=20,no_null_bytes"`
	YearFrom  *int     `json:"yearFrom,omitempty" form:"yearFrom" validate:"omitempty,gte=1850,lte=2200"`
	YearTo    *int     `json:"yearTo,omitempty" form:"yearTo" validate:"omitempty,gte=1850,lte=2200"`
	Languages []string `json:"languages,omitempty" form:"languages" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
	Countries []string `json:"countries,omitempty" form:"countries" validate:"omitempty,max=20,dive,min=1,max=100,no_null_bytes"`
}

// IsEmpty reports whether no filter is set.
func (f MovieFilters) IsEmpty() bool {
	return len(f.Genres) == 0 && f.Rated == nil && f.YearFrom == nil && f.YearTo == nil &&
		len(f.Languages) == 0 && len(f.Countries) == 0
}

// ListMoviesFilters are the query parameters of GET /v1/movies.
type ListMoviesFilters struct {
	MovieFilters

	Title  *string `form:"title" validate:"omitempty,min=1,max=200,no_null_bytes"`
	Limit  int     `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int     `form:"offset" validate:"omitempty,min=0,max=2147483647"`

	// SortBy defaults to IMDb votes, most popular first. SortOrder defaults to asc when SortBy is set.
	SortBy    string `form:"sortBy" validate:"omitempty,oneof=title year released runtime rating votes"`
	SortOrder string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// ListMoviesResponse represents the response for listing movies.
type ListMoviesResponse struct {
	Data   []Movie `json:"data"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// MovieFilterOptions lists the distinct values available for each filter.
type MovieFilterOptions struct {
	Genres    []string `json:"genres"`
	Ratings   []string `json:"ratings"`
	Languages []string `json:"languages"`
	Countries []string `json:"countries"`
	MinYear   *int     `json:"minYear,omitempty"`
	MaxYear   *int     `json:"maxYear,omitempty"`
}
