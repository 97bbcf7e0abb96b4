package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when neither the request nor the client names a
// model.
const DefaultModel = "gpt-4o-mini"

// ErrNoAPIKey means no API key was configured or found in the
// environment.
var ErrNoAPIKey = errors.New("provider: no OpenAI API key configured")

// OpenAI is a Provider backed by the OpenAI chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIOption configures an OpenAI provider.
type OpenAIOption func(*OpenAI) error

// WithAPIKey sets the API key explicitly instead of reading the
// environment.
func WithAPIKey(key string) OpenAIOption {
	return func(o *OpenAI) error {
		o.client = openai.NewClient(key)
		return nil
	}
}

// WithModel sets the default model for requests that leave Model empty.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) error {
		o.model = model
		return nil
	}
}

// WithOpenAILogger sets the logger. Nil disables logging.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *OpenAI) error {
		o.logger = logger
		return nil
	}
}

// NewOpenAI creates an OpenAI provider. Without WithAPIKey the key is
// read from OPENAI_API_KEY, and the default model from OPENAI_MODEL.
func NewOpenAI(opts ...OpenAIOption) (*OpenAI, error) {
	o := &OpenAI{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.client == nil {
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, ErrNoAPIKey
		}
		o.client = openai.NewClient(key)
	}
	if o.model == "" {
		if m := os.Getenv("OPENAI_MODEL"); m != "" {
			o.model = m
		} else {
			o.model = DefaultModel
		}
	}
	return o, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	ccReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		ccReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		ccReq.MaxCompletionTokens = req.MaxTokens
	}

	if o.logger != nil {
		o.logger.Debug("openai completion request", "model", model, "prompt_len", len(req.Prompt))
	}

	resp, err := o.client.CreateChatCompletion(ctx, ccReq)
	if err != nil {
		return Response{}, &Error{Provider: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return Response{}, &Error{Provider: o.Name(), Err: errors.New("no choices returned")}
	}

	choice := resp.Choices[0]
	return Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
