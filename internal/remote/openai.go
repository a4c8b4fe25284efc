package remote

// #region imports
import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// #endregion imports

// #region openai

// DefaultOpenAIModel is used when no model id is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIBackend calls any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a client; baseURL overrides the default endpoint.
func NewOpenAIBackend(apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.Wrap(ErrNoBackend, "openai: missing api key")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(config), model: model}, nil
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string { return "openai" }

// Complete implements Backend.
func (o *OpenAIBackend) Complete(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   params.MaxOutputTokens,
		Temperature: params.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// #endregion openai
