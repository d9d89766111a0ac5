package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mindspace-server/internal/config"
)

// assistantSystemPrompt frames every exchange. Responses are supportive and
// never a substitute for professional care.
const assistantSystemPrompt = "You are an expert psychological counselor for college students. " +
	"Always respond with empathy, support, and confidentiality. Address issues like anxiety, " +
	"depression, burnout, academic stress, sleep problems, and social isolation. Provide " +
	"practical coping strategies, but do not replace professional medical advice. Encourage " +
	"seeking a professional if the problem is severe. Keep responses clear, non-judgmental, " +
	"and friendly."

// Assistant is the wellness chatbot client.
type Assistant struct {
	client openai.Client
	model  string
}

// NewAssistant creates an Assistant from configuration.
func NewAssistant(cfg config.AssistantConfig) *Assistant {
	return &Assistant{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}
}

// Reply sends the student's message to the model and returns the assistant's
// answer.
func (a *Assistant) Reply(ctx context.Context, query string) (string, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(assistantSystemPrompt),
			openai.UserMessage(query),
		},
		MaxCompletionTokens: openai.Int(512),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
