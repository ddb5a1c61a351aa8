package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/DeafMist/news-digest/internal/apperr"
	"github.com/DeafMist/news-digest/internal/prompt"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI talks to any OpenAI-compatible chat endpoint. It returns no
// grounding, so it is paired with active resolution.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI creates a generator backed by an OpenAI-compatible API.
// Set BaseURL to point at a local server; leave empty for api.openai.com.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (o *OpenAI) Name() string { return ProviderOpenAI + "/" + o.cfg.Model }

func (o *OpenAI) Generate(ctx context.Context, p prompt.Prompt) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: o.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindUpstream, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, apperr.New(apperr.KindUpstream, fmt.Sprintf("empty response from model %q", o.cfg.Model))
	}
	return Response{Text: resp.Choices[0].Message.Content}, nil
}
