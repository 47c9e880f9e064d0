// Package handlers implements the HTTP handlers of the public API.
package handlers

import (
	"context"
	"net/http"

	"github.com/filmgrid/hub/internal/api/response"
	"github.com/filmgrid/hub/internal/api/validation"
	"github.com/filmgrid/hub/internal/models"
)

// RecommendationService defines the recommendation pipeline used by the handler.
type RecommendationService interface {
	Recommend(ctx context.Context, q models.RecommendationQuery) (*models.RecommendationResponse, error)
}

// RecommendationsHandler handles HTTP requests for recommendations.
type RecommendationsHandler struct {
	service RecommendationService
}

// NewRecommendationsHandler creates a new recommendations handler.
func NewRecommendationsHandler(service RecommendationService) *RecommendationsHandler {
	return &RecommendationsHandler{service: service}
}

// Recommend handles POST /v1/recommendations.
// @Summary Recommend movies for a free-text description
// @Accept json
// @Produce json
// @Success 200 {object} models.RecommendationResponse
// @Failure 400 {object} response.ProblemDetails
// @Failure 502 {object} response.ProblemDetails "Embedding or retrieval failed"
// @Security BearerAuth
// @Router /v1/recommendations [post]
func (h *RecommendationsHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendationRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	resp, err := h.service.Recommend(r.Context(), req.ToQuery())
	if err != nil {
		response.RespondServiceError(r.Context(), w, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}
