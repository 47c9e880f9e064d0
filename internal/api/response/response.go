// Package response writes JSON bodies and RFC 7807 problem details.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/filmgrid/hub/internal/huberrors"
)

// ErrorDetail represents a single error detail in RFC 7807 Problem Details
type ErrorDetail struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details error response
type ProblemDetails struct {
	Type     string        `json:"type,omitempty"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// RespondProblem writes problem as application/problem+json.
func RespondProblem(w http.ResponseWriter, problem ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	RespondProblem(w, ProblemDetails{Title: title, Status: statusCode, Detail: detail})
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondServiceError maps an error from the service layer to a problem response.
// Details of upstream and internal failures are logged, not returned.
func RespondServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		invalid    *huberrors.InvalidArgumentError
		validation *huberrors.ValidationError
		notFound   *huberrors.NotFoundError
		failed     *huberrors.RecommendationFailedError
	)

	switch {
	case errors.As(err, &validation):
		RespondProblem(w, ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: validation.Message,
			Errors: []ErrorDetail{{Location: validation.Field, Message: validation.Message}},
		})
	case errors.As(err, &invalid):
		RespondProblem(w, ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: invalid.Message,
			Errors: []ErrorDetail{{Location: invalid.Argument, Message: invalid.Message}},
		})
	case errors.As(err, &notFound):
		RespondNotFound(w, notFound.Error())
	case errors.Is(err, huberrors.ErrConflict):
		RespondError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, huberrors.ErrConfiguration):
		slog.ErrorContext(ctx, "request failed: configuration", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "service is not configured")
	case errors.As(err, &failed):
		slog.ErrorContext(ctx, "request failed: recommendation pipeline", "stage", failed.Stage, "error", err)
		RespondError(w, http.StatusBadGateway, "Bad Gateway", "recommendation failed at "+failed.Stage)
	case errors.Is(err, huberrors.ErrUpstream):
		slog.ErrorContext(ctx, "request failed: upstream", "error", err)
		RespondError(w, http.StatusBadGateway, "Bad Gateway", "upstream service failed")
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(w, http.StatusGatewayTimeout, "Gateway Timeout", "request timed out")
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		RespondInternalServerError(w, "An unexpected error occurred")
	}
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
