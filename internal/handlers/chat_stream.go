package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"llmchat-api/internal/contextutil"
	"llmchat-api/internal/observability"
	"llmchat-api/internal/service"
	"llmchat-api/internal/sse"
)

// StreamHandler serves chat replies as a Server-Sent Events stream.
type StreamHandler struct {
	chatService service.ChatService
	decoder     *requestDecoder
	metrics     *observability.StreamingMetrics
}

// NewStreamHandler creates a new StreamHandler. A nil chatService marks the
// handler as not ready.
func NewStreamHandler(chatService service.ChatService, metrics *observability.StreamingMetrics, maxMessageBytes int) *StreamHandler {
	return &StreamHandler{
		chatService: chatService,
		decoder:     newRequestDecoder(maxMessageBytes),
		metrics:     metrics,
	}
}

// ServeHTTP handles POST /api/chat/stream.
//
// Request validation and readiness are checked before any byte of the stream
// is written; they are the only failures reported through the status line.
// Everything after the start event is reported in-band.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()
	endpoint := observability.EndpointChatStream

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fail := func(err error) {
		code := writeServiceError(ctx, w, err)
		h.metrics.RecordError(endpoint, code)
		h.metrics.RecordRequest(endpoint, false, time.Since(start))
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

	writer, err := sse.NewWriter(w)
	if err != nil {
		logger.ErrorContext(ctx, "streaming not supported by response writer", "error", err)
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		h.metrics.RecordError(endpoint, observability.ErrorCodeInternal)
		h.metrics.RecordRequest(endpoint, false, time.Since(start))
		return
	}

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.metrics.StreamStarted(endpoint)
	defer h.metrics.StreamEnded(endpoint)

	logger.DebugContext(ctx, "stream opened",
		"message_length", len(req.Message),
		"history_length", len(req.History),
	)

	result := h.stream(ctx, writer, req, start)

	switch result.outcome {
	case outcomeClientGone:
		logger.InfoContext(ctx, "client disconnected during stream", "tokens", result.tokens)
		h.metrics.RecordClientDisconnect(endpoint)
	case outcomeFault:
		logger.ErrorContext(ctx, "stream ended with error event", "error", result.errMsg, "tokens", result.tokens)
		h.metrics.RecordError(endpoint, observability.ErrorCodeStreamPanic)
	case outcomeUpstreamError:
		logger.WarnContext(ctx, "stream ended with error fragment", "tokens", result.tokens)
		h.metrics.RecordError(endpoint, observability.ErrorCodeLLMError)
	default:
		logger.InfoContext(ctx, "stream completed",
			"tokens", result.tokens,
			"response_length", result.length,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	h.metrics.RecordTokens(h.chatService.Model(), result.tokens)
	h.metrics.RecordRequest(endpoint, result.outcome == outcomeCompleted, time.Since(start))
}

type streamOutcome int

const (
	outcomeCompleted streamOutcome = iota
	outcomeUpstreamError
	outcomeFault
	outcomeClientGone
)

type streamResult struct {
	outcome streamOutcome
	tokens  int
	length  int
	errMsg  string
}

// stream writes every event of the reply. It stops pulling fragments as soon
// as the client is gone, which closes the upstream stream.
func (h *StreamHandler) stream(ctx context.Context, writer *sse.Writer, req service.ChatRequest, start time.Time) streamResult {
	var res streamResult
	var last string

	for ev := range sse.Events(h.chatService.StreamChat(ctx, req)) {
		if ctx.Err() != nil {
			res.outcome = outcomeClientGone
			return res
		}

		switch e := ev.(type) {
		case sse.Token:
			// A stream that fails before any output has no first token.
			if res.tokens == 0 && !strings.HasPrefix(e.Content, service.ErrorFragmentPrefix) {
				h.metrics.RecordTimeToFirstToken(observability.EndpointChatStream, time.Since(start))
			}
			res.tokens++
			last = e.Content
		case sse.End:
			res.length = len(e.FullResponse)
			if strings.HasPrefix(last, service.ErrorFragmentPrefix) {
				res.outcome = outcomeUpstreamError
			}
		case sse.Error:
			res.outcome = outcomeFault
			res.errMsg = e.Message
		}

		if err := writer.WriteEvent(ev); err != nil {
			if errors.Is(err, sse.ErrClientGone) {
				res.outcome = outcomeClientGone
				return res
			}
			contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode event", "error", err)
			res.outcome = outcomeFault
			res.errMsg = err.Error()
			return res
		}
	}
	return res
}
