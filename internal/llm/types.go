package llm

// Chat roles understood by OpenAI-compatible providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	// If 0, the client's default temperature is used.
	Temperature float32
}

// Stream is an open streaming completion. Recv returns the next non-empty
// text fragment, or io.EOF once the provider has finished.
type Stream interface {
	Recv() (string, error)
	Close() error
}
