package handlers

import (
	"context"
	"net/http"

	"github.com/filmgrid/hub/internal/api/response"
	"github.com/filmgrid/hub/internal/api/validation"
	"github.com/filmgrid/hub/internal/models"
)

// BackfillEnqueuer queues an embedding backfill.
type BackfillEnqueuer interface {
	Enqueue(ctx context.Context, batchSize int) (*models.BackfillResponse, error)
}

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	backfill BackfillEnqueuer
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(backfill BackfillEnqueuer) *AdminHandler {
	return &AdminHandler{backfill: backfill}
}

// BackfillEmbeddings handles POST /v1/admin/embeddings/backfill. The body is optional.
// @Summary Queue an embedding backfill
// @Success 202 {object} models.BackfillResponse
// @Security BearerAuth
// @Router /v1/admin/embeddings/backfill [post]
func (h *AdminHandler) BackfillEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req models.BackfillRequest

	if r.ContentLength != 0 {
		if err := validation.DecodeJSON(r, &req); err != nil {
			response.RespondBadRequest(w, "Invalid request body")

			return
		}
	}

	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	batchSize := 0
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}

	resp, err := h.backfill.Enqueue(r.Context(), batchSize)
	if err != nil {
		response.RespondServiceError(r.Context(), w, err)

		return
	}

	response.RespondJSON(w, http.StatusAccepted, resp)
}
