package handlers

import (
	"net/http"
	"time"

	"llmchat-api/internal/contextutil"
	"llmchat-api/internal/observability"
	"llmchat-api/internal/service"
)

// ChatHandler serves non-streaming chat completions.
type ChatHandler struct {
	chatService service.ChatService
	decoder     *requestDecoder
	metrics     *observability.StreamingMetrics
}

// NewChatHandler creates a new ChatHandler. A nil chatService marks the
// handler as not ready: valid requests are answered with 500.
func NewChatHandler(chatService service.ChatService, metrics *observability.StreamingMetrics, maxMessageBytes int) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		decoder:     newRequestDecoder(maxMessageBytes),
		metrics:     metrics,
	}
}

// ChatResponse represents the HTTP response payload for chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ServeHTTP handles POST /api/chat.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fail := func(err error) {
		code := writeServiceError(ctx, w, err)
		h.metrics.RecordError(observability.EndpointChat, code)
		h.metrics.RecordRequest(observability.EndpointChat, false, time.Since(start))
	}

	req, err := h.decoder.decode(w, r)
	if err != nil {
		fail(err)
		return
	}

	if h.chatService == nil {
		fail(errNotReady)
		return
	}

	resp, err := h.chatService.ProcessChat(ctx, req)
	if err != nil {
		fail(err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, ChatResponse{Reply: resp.Reply})
	h.metrics.RecordRequest(observability.EndpointChat, true, time.Since(start))
}
