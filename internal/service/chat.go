package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks llmchat-api/internal/service LLMClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService llmchat-api/internal/service ChatService
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_stream.go -package=mocks llmchat-api/internal/llm Stream

import (
	"context"
	"iter"

	"llmchat-api/internal/llm"
)

// LLMClient is an interface for interacting with an LLM API.
// This interface is defined from the service layer's perspective (consumer-first).
type LLMClient interface {
	// Chat sends messages to the LLM and returns the reply.
	Chat(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	// StreamChat opens a streaming completion for messages.
	StreamChat(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Stream, error)
}

// Role is the author of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the conversation history supplied by the client.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat request in the domain layer.
type ChatRequest struct {
	Message string
	History []ChatMessage
}

// ChatResponse represents a chat response in the domain layer.
type ChatResponse struct {
	Reply string
}

// ChatService provides chat functionality.
type ChatService interface {
	// ProcessChat processes a chat request and returns the whole reply.
	ProcessChat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// StreamChat returns the reply as a lazy, single-use sequence of text
	// fragments. The sequence always ends normally; upstream failures are
	// delivered as a final "Error: ..." fragment.
	StreamChat(ctx context.Context, req ChatRequest) iter.Seq[string]
	// Model returns the upstream model identifier.
	Model() string
}
