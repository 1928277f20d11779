package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llmchat-api/internal/sse"
)

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamRequest struct {
	Message     string           `json:"message"`
	ChatHistory []historyMessage `json:"chat_history"`
}

type chatClient struct {
	baseURL    string
	httpClient *http.Client
}

func newChatClient(baseURL string) *chatClient {
	return &chatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client timeout: a reply streams for as long as the model writes.
		httpClient: &http.Client{},
	}
}

// stream posts message and calls onToken for every token as it arrives.
// It returns the full reply carried by the end event.
func (c *chatClient) stream(ctx context.Context, message string, history []historyMessage, onToken func(string)) (string, error) {
	if history == nil {
		history = []historyMessage{}
	}
	data, err := json.Marshal(streamRequest{Message: message, ChatHistory: history})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("server not reachable, is the API running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	dec := sse.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return "", errors.New("stream closed before the reply finished")
		}
		if err != nil {
			return "", err
		}

		switch e := ev.(type) {
		case sse.Token:
			onToken(e.Content)
		case sse.End:
			return e.FullResponse, nil
		case sse.Error:
			return "", fmt.Errorf("stream error: %s", e.Message)
		}
	}
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
