// ABOUTME: Responder backed by an OpenAI-compatible chat completion endpoint
// ABOUTME: Maps history turns to user/assistant roles behind a support-agent system prompt

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are the first-line support assistant on a company's live chat.
Answer briefly and politely. If the customer wants to talk to a person, tell them they can
ask for a sales representative at any time. Reply in the language with ISO code %q.`

// OpenAIResponder generates replies with a chat completion model.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIResponder creates a responder. baseURL may be empty for the public API.
func NewOpenAIResponder(apiKey, model, baseURL string, logger *slog.Logger) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With("component", "assistant"),
	}
}

// Respond sends the system prompt, the history, and the new message.
func (o *OpenAIResponder) Respond(ctx context.Context, text, lang string, history []Turn) (Reply, error) {
	if lang == "" {
		lang = "en"
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(systemPrompt, lang),
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.FromBot {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Reply{}, ErrEmptyReply
	}
	o.logger.Debug("completion", "model", o.model, "history", len(history), "chars", len(content))

	return Reply{Text: content, Language: lang, Model: o.model, Confidence: 0.9}, nil
}

var _ Responder = (*OpenAIResponder)(nil)
