package service

import "strings"

const (
	// DefaultHistoryWindow is the number of most recent messages kept for the prompt.
	DefaultHistoryWindow = 10

	// EmptyHistoryPlaceholder stands in for an empty conversation ("no prior conversation").
	EmptyHistoryPlaceholder = "无历史对话"

	unknownRole = "unknown"
)

// FormatHistory renders the last DefaultHistoryWindow messages of history,
// oldest first, one "role: content" line per message.
func FormatHistory(history []ChatMessage) string {
	return FormatHistoryWindow(history, DefaultHistoryWindow)
}

// FormatHistoryWindow is FormatHistory with an explicit window size.
// A non-positive window falls back to DefaultHistoryWindow.
func FormatHistoryWindow(history []ChatMessage, window int) string {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if len(history) == 0 {
		return EmptyHistoryPlaceholder
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := string(msg.Role)
		if role == "" {
			role = unknownRole
		}
		lines = append(lines, role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
