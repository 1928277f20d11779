package handlers

import (
	"net/http"
	"time"

	"llmchat-api/internal/contextutil"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	modelName string
	ready     bool
	now       func() time.Time
}

// NewHealthHandler creates a new HealthHandler. ready reports whether the
// chat service was constructed at startup.
func NewHealthHandler(modelName string, ready bool) *HealthHandler {
	return &HealthHandler{
		modelName: modelName,
		ready:     ready,
		now:       time.Now,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Upstream model identifier
	Model string `json:"model"`

	// Ready reports whether the chat service accepts requests.
	Ready bool `json:"ready"`

	// APIConfigured mirrors Ready for older clients.
	APIConfigured bool `json:"api_configured"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`
}

// ServeHTTP handles GET /api/health.
// Returns 200 OK when ready, 503 Service Unavailable otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !h.ready {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:        status,
		Model:         h.modelName,
		Ready:         h.ready,
		APIConfigured: h.ready,
		Timestamp:     h.now().UTC().Format(time.RFC3339),
	})
}
