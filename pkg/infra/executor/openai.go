package executor

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

// Config holds the settings for the OpenAI-backed query executor.
type Config struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

type openaiExecutor struct {
	client       openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIExecutor answers fantasy basketball queries through the OpenAI
// chat completions API. The system prompt carries the assistant persona;
// only the sanitized query goes into the user message.
func NewOpenAIExecutor(cfg Config) (types.QueryExecutor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &openaiExecutor{
		client:       openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

func (e *openaiExecutor) Execute(ctx context.Context, sanitizedQuery string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if e.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(e.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(sanitizedQuery))

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: messages,
	})
	if err != nil {
		return "", &types.ExecutorError{Message: "openAI completions request failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &types.ExecutorError{Message: "no completions returned"}
	}
	return resp.Choices[0].Message.Content, nil
}
