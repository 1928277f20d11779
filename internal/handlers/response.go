package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"llmchat-api/internal/contextutil"
	"llmchat-api/internal/observability"
	"llmchat-api/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeServiceError maps service errors to HTTP status codes and returns the
// metrics error code for the failure.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) observability.ErrorCode {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(ctx, "invalid chat request", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return observability.ErrorCodeValidation
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		logger.WarnContext(ctx, "invalid chat request", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid input")
		return observability.ErrorCodeValidation
	case errors.Is(err, service.ErrNotReady):
		logger.ErrorContext(ctx, "chat service not ready", "error", err)
		writeError(w, http.StatusInternalServerError, "LLM service not ready")
		return observability.ErrorCodeNotReady
	case errors.Is(err, service.ErrExternalService):
		logger.ErrorContext(ctx, "upstream error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
		return observability.ErrorCodeLLMError
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process chat request")
		return observability.ErrorCodeInternal
	}
}

// errNotReady is returned to callers when no chat service was constructed.
var errNotReady = &service.ConfigurationError{Key: "chat service", Message: "not initialized"}
