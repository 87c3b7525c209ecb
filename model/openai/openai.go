// Package openai implements model.Completion using the OpenAI Chat
// Completions API. It adapts the normalized Request/Response structures into
// the SDK's message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quickrewind/agentcore/model"
)

// Options configure the OpenAI completion adapter. Fields mirror a minimal
// subset of Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Completion wraps the OpenAI Chat Completions API behind model.Completion.
type Completion struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI completion adapter. Credentials come from the
// options or, when absent, the environment.
func New(optFns ...func(o *Options)) *Completion {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Completion{client: &client, opts: opts}
}

// NewFromClient creates an adapter from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Completion {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completion{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.3,
		MaxCompletionTokens: 4096,
	}
}

// Name identifies the provider.
func (c *Completion) Name() string { return "openai" }

// Complete performs one non-streaming chat completion call.
func (c *Completion) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               c.opts.Model,
		Temperature:         openai.Float(temperature(req, c.opts)),
		MaxCompletionTokens: openai.Int(maxTokens(req, c.opts)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api error: empty choices")
	}

	return &model.Response{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// buildMessages converts normalized messages into OpenAI chat messages,
// prepending the system prompt when present.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

func temperature(req model.Request, opts Options) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return opts.Temperature
}

func maxTokens(req model.Request, opts Options) int64 {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return opts.MaxCompletionTokens
}
