package service

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"llmchat-api/internal/contextutil"
	"llmchat-api/internal/llm"
)

// ErrorFragmentPrefix marks the textual error fragment that ends a failed stream.
const ErrorFragmentPrefix = "Error: "

// PipelineConfig fixes the upstream settings for the lifetime of the process.
type PipelineConfig struct {
	// APIKey is the upstream credential. It is only checked here; the LLM
	// client carries it on the wire.
	APIKey        string
	Model         string
	Temperature   float32
	HistoryWindow int
	// Timeout bounds each upstream call. Zero means no deadline.
	Timeout time.Duration
}

// ChatPipeline binds the conversation prompt to the upstream completion client.
// It is immutable after construction and safe for concurrent use.
type ChatPipeline struct {
	llmClient     LLMClient
	prompt        prompts.PromptTemplate
	model         string
	temperature   float32
	historyWindow int
	timeout       time.Duration
}

var _ ChatService = (*ChatPipeline)(nil)

// NewChatPipeline validates cfg and returns a ready pipeline. A missing
// credential yields a *ConfigurationError; callers must treat the service as
// not ready instead of accepting requests.
func NewChatPipeline(cfg PipelineConfig, llmClient LLMClient) (*ChatPipeline, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigurationError{Key: "DEEPSEEK_API_KEY", Message: "is required"}
	}
	if cfg.Model == "" {
		return nil, &ConfigurationError{Key: "LLM_MODEL", Message: "is required"}
	}
	if llmClient == nil {
		return nil, &ConfigurationError{Key: "llm client", Message: "is nil"}
	}

	tmpl := newConversationPrompt()
	if _, err := renderPrompt(tmpl, EmptyHistoryPlaceholder, ""); err != nil {
		return nil, &ConfigurationError{Key: "prompt template", Message: err.Error()}
	}

	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}

	return &ChatPipeline{
		llmClient:     llmClient,
		prompt:        tmpl,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		historyWindow: window,
		timeout:       cfg.Timeout,
	}, nil
}

// Model returns the upstream model identifier.
func (p *ChatPipeline) Model() string {
	return p.model
}

// ProcessChat renders the prompt and makes one non-streaming completion.
func (p *ChatPipeline) ProcessChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Message) == "" {
		logger.WarnContext(ctx, "empty message in chat request")
		return ChatResponse{}, &ValidationError{
			Field:   "message",
			Message: "cannot be empty",
		}
	}

	messages, err := p.buildMessages(req)
	if err != nil {
		return ChatResponse{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	reply, err := p.llmClient.Chat(ctx, messages, p.params())
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return ChatResponse{}, &UpstreamError{Op: "chat completion", Err: err}
	}

	logger.InfoContext(ctx, "chat request processed successfully",
		"message_length", len(req.Message),
		"history_length", len(req.History),
		"reply_length", len(reply),
	)
	return ChatResponse{Reply: reply}, nil
}

// StreamChat returns the reply as fragments in arrival order. The upstream
// stream is opened on the first pull and closed when the sequence ends or the
// consumer stops early. Failures before or during streaming end the sequence
// with a single "Error: <message>" fragment. When ctx is cancelled the
// sequence simply stops, since nobody is left to read the error.
func (p *ChatPipeline) StreamChat(ctx context.Context, req ChatRequest) iter.Seq[string] {
	return func(yield func(string) bool) {
		logger := contextutil.LoggerFromContext(ctx)

		messages, err := p.buildMessages(req)
		if err != nil {
			logger.ErrorContext(ctx, "failed to build prompt", "error", err)
			yield(errorFragment(err))
			return
		}

		streamCtx, cancel := p.withTimeout(ctx)
		defer cancel()

		stream, err := p.llmClient.StreamChat(streamCtx, messages, p.params())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "failed to open LLM stream", "error", err)
			yield(errorFragment(err))
			return
		}
		defer func() {
			if err := stream.Close(); err != nil {
				logger.DebugContext(ctx, "failed to close LLM stream", "error", err)
			}
		}()

		fragments := 0
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				logger.DebugContext(ctx, "LLM stream finished", "fragments", fragments)
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					logger.DebugContext(ctx, "LLM stream cancelled", "fragments", fragments)
					return
				}
				logger.ErrorContext(ctx, "LLM stream failed", "error", err, "fragments", fragments)
				yield(errorFragment(err))
				return
			}
			fragments++
			if !yield(chunk) {
				return
			}
		}
	}
}

func (p *ChatPipeline) buildMessages(req ChatRequest) ([]llm.Message, error) {
	history := FormatHistoryWindow(req.History, p.historyWindow)
	prompt, err := renderPrompt(p.prompt, history, req.Message)
	if err != nil {
		return nil, err
	}
	return []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil
}

func (p *ChatPipeline) params() llm.ChatParams {
	return llm.ChatParams{
		Model:       p.model,
		Temperature: p.temperature,
	}
}

func (p *ChatPipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func errorFragment(err error) string {
	return ErrorFragmentPrefix + err.Error()
}
