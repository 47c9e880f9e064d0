package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/models"
)

func intPtr(v int) *int { return &v }

func TestValidateStruct_RecommendationRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.RecommendationRequest
		wantErr string
	}{
		{name: "valid", req: models.RecommendationRequest{Description: "a heist in Paris"}},
		{name: "missing description", req: models.RecommendationRequest{}, wantErr: "description is required"},
		{name: "blank description", req: models.RecommendationRequest{Description: "  \t "}, wantErr: "description must not be blank"},
		{name: "null byte", req: models.RecommendationRequest{Description: "a\x00b"}, wantErr: "description must not contain NULL bytes"},
		{
			name:    "description too long",
			req:     models.RecommendationRequest{Description: strings.Repeat("x", 1001)},
			wantErr: "description must be at most 1000",
		},
		{
			name:    "zero page",
			req:     models.RecommendationRequest{Description: "drama", Page: intPtr(0)},
			wantErr: "page must be at least 1",
		},
		{
			name:    "inverted year range",
			req:     models.RecommendationRequest{Description: "drama", YearFrom: intPtr(2000), YearTo: intPtr(1990)},
			wantErr: "yearFrom must not be after yearTo",
		},
		{
			name:    "empty genre",
			req:     models.RecommendationRequest{Description: "drama", Genres: []string{""}},
			wantErr: "must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotEmpty(t, GetValidationErrorDetails(err))
		})
	}
}

func TestValidateAndDecodeQueryParams(t *testing.T) {
	t.Run("decodes embedded filters", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/movies?genres=Drama&genres=Comedy&yearFrom=1990&limit=5&title=toy", http.NoBody)

		var filters models.ListMoviesFilters
		require.NoError(t, ValidateAndDecodeQueryParams(r, &filters))

		assert.Equal(t, []string{"Drama", "Comedy"}, filters.Genres)
		require.NotNil(t, filters.YearFrom)
		assert.Equal(t, 1990, *filters.YearFrom)
		assert.Equal(t, 5, filters.Limit)
		require.NotNil(t, filters.Title)
		assert.Equal(t, "toy", *filters.Title)
	})

	t.Run("rejects out of range limit", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/movies?limit=1000", http.NoBody)

		var filters models.ListMoviesFilters
		err := ValidateAndDecodeQueryParams(r, &filters)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit must be at most 100")
	})

	t.Run("rejects malformed numbers", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/movies?yearFrom=nineteen", http.NoBody)

		var filters models.ListMoviesFilters
		assert.Error(t, ValidateAndDecodeQueryParams(r, &filters))
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":"x","colour":"red"}`))

		var req models.RecommendationRequest
		assert.Error(t, DecodeJSON(r, &req))
	})

	t.Run("trailing data", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":"x"} {}`))

		var req models.RecommendationRequest
		assert.Error(t, DecodeJSON(r, &req))
	})

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":"x","limit":3}`))

		var req models.RecommendationRequest
		require.NoError(t, DecodeJSON(r, &req))
		assert.Equal(t, 3, *req.Limit)
	})
}

func TestRespondValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondValidationError(rec, ValidateStruct(models.RecommendationRequest{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"location":"description"`)
}
