package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("no choices returned")

// Client is a client for an OpenAI-compatible chat completions API
// (DeepSeek by default).
type Client struct {
	BaseURL     string
	Model       string
	Temperature float32
	client      *openai.Client
}

// NewClient creates a new LLM client. baseURL must include the API version
// prefix, e.g. https://api.deepseek.com/v1.
func NewClient(baseURL, apiKey, model string, temperature float32) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		BaseURL:     config.BaseURL,
		Model:       model,
		Temperature: temperature,
		client:      openai.NewClientWithConfig(config),
	}
}

// Chat sends a non-streaming chat completion request and returns the reply text.
func (c *Client) Chat(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, params))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}

// StreamChat opens a streaming chat completion. The returned Stream must be
// closed by the caller. Cancelling ctx aborts the underlying HTTP request.
func (c *Client) StreamChat(ctx context.Context, messages []Message, params ChatParams) (Stream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(messages, params))
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}
	return &chatStream{stream: stream}, nil
}

func (c *Client) buildRequest(messages []Message, params ChatParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	if params.Model != "" {
		req.Model = params.Model
	}
	if params.Temperature != 0 {
		req.Temperature = params.Temperature
	}
	// go-openai drops a zero temperature from the payload, which lets the
	// provider apply its own default. The smallest float32 stays on the wire.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return req
}

// chatStream adapts go-openai's chunk stream to plain text fragments.
type chatStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips role-only and finish chunks, which carry no content.
func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}
