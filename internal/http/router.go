package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmchat-api/internal/handlers"
	"llmchat-api/internal/observability"
	"llmchat-api/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	// ChatService is nil when the pipeline failed to initialize at startup.
	ChatService     service.ChatService
	ModelName       string
	MaxMessageBytes int
	Metrics         *observability.StreamingMetrics
	// Registry backs GET /metrics. The route is omitted when nil.
	Registry *prometheus.Registry
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	chatHandler := handlers.NewChatHandler(deps.ChatService, deps.Metrics, deps.MaxMessageBytes)
	streamHandler := handlers.NewStreamHandler(deps.ChatService, deps.Metrics, deps.MaxMessageBytes)
	healthHandler := handlers.NewHealthHandler(deps.ModelName, deps.ChatService != nil)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/chat", chatHandler)
		r.Method(http.MethodPost, "/chat/stream", streamHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}
