package service

import "github.com/tmc/langchaingo/prompts"

const (
	historyVar   = "chat_history"
	userInputVar = "user_input"
)

// conversationTemplate asks the model to answer in the context of the
// formatted history.
const conversationTemplate = `你是一个有用的 AI 助手。请根据对话历史回答用户的问题。

对话历史：
{{.chat_history}}

用户：{{.user_input}}
助手：`

func newConversationPrompt() prompts.PromptTemplate {
	return prompts.NewPromptTemplate(conversationTemplate, []string{historyVar, userInputVar})
}

// renderPrompt fills the template with the formatted history and raw user input.
func renderPrompt(tmpl prompts.PromptTemplate, formattedHistory, userInput string) (string, error) {
	prompt, err := tmpl.Format(map[string]any{
		historyVar:   formattedHistory,
		userInputVar: userInput,
	})
	if err != nil {
		return "", WrapError(err, "failed to render prompt")
	}
	return prompt, nil
}
