// Command chat is a terminal client for the streaming chat API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8000"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		server        string
		historyWindow int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the LLM API from the terminal",
		Long: `Chat with the LLM API from the terminal.

With a message argument the reply is streamed once and the command exits.
Without one, an interactive session starts; type "exit" or "quit" to leave.

Examples:
  chat "What is a goroutine?"
  chat --server http://localhost:8000 --history-window 6`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyWindow < 0 {
				return fmt.Errorf("--history-window must not be negative")
			}
			s := &session{
				client: newChatClient(server),
				window: historyWindow,
				out:    cmd.OutOrStdout(),
			}
			if len(args) > 0 {
				return s.send(cmd.Context(), strings.Join(args, " "))
			}
			return s.interactive(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&server, "server", envOr("CHAT_SERVER", defaultServer), "base URL of the chat API")
	cmd.Flags().IntVar(&historyWindow, "history-window", 10, "number of previous messages sent with each request")
	return cmd
}

// session keeps the conversation history of one terminal run.
type session struct {
	client  *chatClient
	window  int
	out     io.Writer
	history []historyMessage
}

func (s *session) send(ctx context.Context, message string) error {
	reply, err := s.client.stream(ctx, message, s.recent(), func(token string) {
		fmt.Fprint(s.out, token)
	})
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}

	s.history = append(s.history,
		historyMessage{Role: "user", Content: message},
		historyMessage{Role: "assistant", Content: reply},
	)
	return nil
}

func (s *session) recent() []historyMessage {
	if len(s.history) <= s.window {
		return s.history
	}
	return s.history[len(s.history)-s.window:]
}

func (s *session) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := s.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
