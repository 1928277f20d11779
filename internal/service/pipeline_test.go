package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"llmchat-api/internal/llm"
	"llmchat-api/internal/service"
	"llmchat-api/internal/service/mocks"

	"go.uber.org/mock/gomock"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// testContext returns a context for testing.
// The default logger is already set to discard in init().
func testContext() context.Context {
	return context.Background()
}

func testConfig() service.PipelineConfig {
	return service.PipelineConfig{
		APIKey:      "sk-test",
		Model:       "deepseek-chat",
		Temperature: 0.7,
	}
}

func newPipeline(t *testing.T, client service.LLMClient) *service.ChatPipeline {
	t.Helper()
	p, err := service.NewChatPipeline(testConfig(), client)
	if err != nil {
		t.Fatalf("NewChatPipeline() error = %v", err)
	}
	return p
}

// expectFragments programs stream to return chunks, then finalErr (io.EOF for a clean end).
func expectFragments(stream *mocks.MockStream, chunks []string, finalErr error) {
	calls := make([]any, 0, len(chunks)+1)
	for _, c := range chunks {
		calls = append(calls, stream.EXPECT().Recv().Return(c, nil))
	}
	calls = append(calls, stream.EXPECT().Recv().Return("", finalErr))
	gomock.InOrder(calls...)
	stream.EXPECT().Close().Return(nil).Times(1)
}

func TestNewChatPipeline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)

	tests := []struct {
		name    string
		cfg     service.PipelineConfig
		client  service.LLMClient
		wantKey string
	}{
		{
			name:   "valid configuration",
			cfg:    testConfig(),
			client: mockLLMClient,
		},
		{
			name:    "missing API key",
			cfg:     service.PipelineConfig{Model: "deepseek-chat"},
			client:  mockLLMClient,
			wantKey: "DEEPSEEK_API_KEY",
		},
		{
			name:    "blank API key",
			cfg:     service.PipelineConfig{APIKey: "  ", Model: "deepseek-chat"},
			client:  mockLLMClient,
			wantKey: "DEEPSEEK_API_KEY",
		},
		{
			name:    "missing model",
			cfg:     service.PipelineConfig{APIKey: "sk-test"},
			client:  mockLLMClient,
			wantKey: "LLM_MODEL",
		},
		{
			name:    "missing client",
			cfg:     testConfig(),
			client:  nil,
			wantKey: "llm client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := service.NewChatPipeline(tt.cfg, tt.client)
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("NewChatPipeline() unexpected error: %v", err)
				}
				if p.Model() != "deepseek-chat" {
					t.Errorf("Model() = %v, want deepseek-chat", p.Model())
				}
				return
			}

			var cfgErr *service.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("NewChatPipeline() error = %v, want *ConfigurationError", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("ConfigurationError.Key = %v, want %v", cfgErr.Key, tt.wantKey)
			}
			if !errors.Is(err, service.ErrNotReady) {
				t.Error("configuration errors should match ErrNotReady")
			}
			if p != nil {
				t.Error("NewChatPipeline() should not return a pipeline on error")
			}
		})
	}
}

func TestChatPipeline_StreamChat(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(client *mocks.MockLLMClient, stream *mocks.MockStream)
		want      []string
	}{
		{
			name: "fragments in arrival order",
			mockSetup: func(client *mocks.MockLLMClient, stream *mocks.MockStream) {
				client.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(stream, nil)
				expectFragments(stream, []string{"Hi", " there", "!"}, io.EOF)
			},
			want: []string{"Hi", " there", "!"},
		},
		{
			name: "zero fragments",
			mockSetup: func(client *mocks.MockLLMClient, stream *mocks.MockStream) {
				client.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(stream, nil)
				expectFragments(stream, nil, io.EOF)
			},
			want: nil,
		},
		{
			name: "failure before first fragment",
			mockSetup: func(client *mocks.MockLLMClient, stream *mocks.MockStream) {
				client.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, errors.New("401 invalid api key"))
			},
			want: []string{"Error: 401 invalid api key"},
		},
		{
			name: "failure mid-stream",
			mockSetup: func(client *mocks.MockLLMClient, stream *mocks.MockStream) {
				client.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(stream, nil)
				expectFragments(stream, []string{"Partial"}, errors.New("connection reset"))
			},
			want: []string{"Partial", "Error: connection reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockLLMClient := mocks.NewMockLLMClient(ctrl)
			mockStream := mocks.NewMockStream(ctrl)
			tt.mockSetup(mockLLMClient, mockStream)

			p := newPipeline(t, mockLLMClient)
			got := slices.Collect(p.StreamChat(testContext(), service.ChatRequest{Message: "Hello"}))

			if !slices.Equal(got, tt.want) {
				t.Errorf("StreamChat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatPipeline_StreamChat_Prompt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)
	mockStream := mocks.NewMockStream(ctrl)

	history := []service.ChatMessage{
		{Role: service.RoleUser, Content: "你好"},
		{Role: service.RoleAssistant, Content: "你好！有什么可以帮助你的吗？"},
	}

	mockLLMClient.EXPECT().
		StreamChat(gomock.Any(), gomock.Any(), llm.ChatParams{Model: "deepseek-chat", Temperature: 0.7}).
		DoAndReturn(func(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Stream, error) {
			if len(messages) != 1 || messages[0].Role != llm.RoleUser {
				t.Fatalf("expected a single user message, got %+v", messages)
			}
			prompt := messages[0].Content
			for _, want := range []string{
				"user: 你好\nassistant: 你好！有什么可以帮助你的吗？",
				"用户：请介绍一下人工智能",
				"助手：",
			} {
				if !strings.Contains(prompt, want) {
					t.Errorf("prompt missing %q:\n%s", want, prompt)
				}
			}
			if strings.Contains(prompt, service.EmptyHistoryPlaceholder) {
				t.Error("prompt should not contain the empty-history placeholder")
			}
			return mockStream, nil
		})
	expectFragments(mockStream, nil, io.EOF)

	p := newPipeline(t, mockLLMClient)
	_ = slices.Collect(p.StreamChat(testContext(), service.ChatRequest{Message: "请介绍一下人工智能", History: history}))
}

func TestChatPipeline_StreamChat_EmptyHistoryPlaceholder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)
	mockStream := mocks.NewMockStream(ctrl)

	mockLLMClient.EXPECT().
		StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Stream, error) {
			if !strings.Contains(messages[0].Content, "对话历史：\n"+service.EmptyHistoryPlaceholder) {
				t.Errorf("prompt should carry the placeholder:\n%s", messages[0].Content)
			}
			return mockStream, nil
		})
	expectFragments(mockStream, nil, io.EOF)

	p := newPipeline(t, mockLLMClient)
	_ = slices.Collect(p.StreamChat(testContext(), service.ChatRequest{Message: "Hello"}))
}

func TestChatPipeline_StreamChat_IsLazy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No upstream call is expected until the sequence is ranged over.
	mockLLMClient := mocks.NewMockLLMClient(ctrl)

	p := newPipeline(t, mockLLMClient)
	_ = p.StreamChat(testContext(), service.ChatRequest{Message: "Hello"})
}

func TestChatPipeline_StreamChat_ConsumerStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)
	mockStream := mocks.NewMockStream(ctrl)

	mockLLMClient.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(mockStream, nil)
	mockStream.EXPECT().Recv().Return("first", nil).Times(1)
	mockStream.EXPECT().Close().Return(nil).Times(1)

	p := newPipeline(t, mockLLMClient)
	for chunk := range p.StreamChat(testContext(), service.ChatRequest{Message: "Hello"}) {
		if chunk != "first" {
			t.Errorf("chunk = %q, want first", chunk)
		}
		break
	}
}

func TestChatPipeline_StreamChat_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)
	mockStream := mocks.NewMockStream(ctrl)

	ctx, cancel := context.WithCancel(testContext())

	mockLLMClient.EXPECT().StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).Return(mockStream, nil)
	gomock.InOrder(
		mockStream.EXPECT().Recv().DoAndReturn(func() (string, error) {
			cancel()
			return "", context.Canceled
		}),
	)
	mockStream.EXPECT().Close().Return(nil)

	p := newPipeline(t, mockLLMClient)
	got := slices.Collect(p.StreamChat(ctx, service.ChatRequest{Message: "Hello"}))
	if len(got) != 0 {
		t.Errorf("StreamChat() after cancellation = %q, want no fragments", got)
	}
}

func TestChatPipeline_StreamChat_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLLMClient := mocks.NewMockLLMClient(ctrl)

	cfg := testConfig()
	cfg.Timeout = time.Minute
	p, err := service.NewChatPipeline(cfg, mockLLMClient)
	if err != nil {
		t.Fatalf("NewChatPipeline() error = %v", err)
	}

	mockLLMClient.EXPECT().
		StreamChat(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Stream, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("upstream context should carry a deadline")
			}
			return nil, context.DeadlineExceeded
		})

	got := slices.Collect(p.StreamChat(testContext(), service.ChatRequest{Message: "Hello"}))
	want := []string{"Error: " + context.DeadlineExceeded.Error()}
	if !slices.Equal(got, want) {
		t.Errorf("StreamChat() = %q, want %q", got, want)
	}
}

func TestChatPipeline_ProcessChat(t *testing.T) {
	tests := []struct {
		name         string
		req          service.ChatRequest
		mockSetup    func(*mocks.MockLLMClient)
		wantErr      bool
		wantReply    string
		checkErrType func(error) bool
	}{
		{
			name: "successful chat",
			req:  service.ChatRequest{Message: "你是谁？"},
			mockSetup: func(m *mocks.MockLLMClient) {
				m.EXPECT().
					Chat(gomock.Any(), gomock.Any(), llm.ChatParams{Model: "deepseek-chat", Temperature: 0.7}).
					Return("我是 DeepSeek。", nil)
			},
			wantReply: "我是 DeepSeek。",
		},
		{
			name:      "blank message",
			req:       service.ChatRequest{Message: "   "},
			mockSetup: func(m *mocks.MockLLMClient) {},
			wantErr:   true,
			checkErrType: func(err error) bool {
				var validationErr *service.ValidationError
				return errors.As(err, &validationErr) && validationErr.Field == "message"
			},
		},
		{
			name: "LLM client error",
			req:  service.ChatRequest{Message: "Hello"},
			mockSetup: func(m *mocks.MockLLMClient) {
				m.EXPECT().
					Chat(gomock.Any(), gomock.Any(), gomock.Any()).
					Return("", errors.New("LLM service unavailable"))
			},
			wantErr: true,
			checkErrType: func(err error) bool {
				return errors.Is(err, service.ErrExternalService)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockLLMClient := mocks.NewMockLLMClient(ctrl)
			tt.mockSetup(mockLLMClient)

			p := newPipeline(t, mockLLMClient)
			resp, err := p.ProcessChat(testContext(), tt.req)

			if tt.wantErr {
				if err == nil {
					t.Fatal("ProcessChat() expected error, got nil")
				}
				if tt.checkErrType != nil && !tt.checkErrType(err) {
					t.Errorf("ProcessChat() error type mismatch: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProcessChat() unexpected error: %v", err)
			}
			if resp.Reply != tt.wantReply {
				t.Errorf("ProcessChat() reply = %v, want %v", resp.Reply, tt.wantReply)
			}
		})
	}
}
