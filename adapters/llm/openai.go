package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agentgate/agentgate/ports"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
// With BaseURL set to XAIBaseURL it serves xAI models as well.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAIClient creates a client using the official OpenAI SDK.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.timeout()),
		option.WithMaxRetries(cfg.maxRetries()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIClient{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.maxTokens(),
	}, nil
}

// Complete performs a single completion call.
func (c *OpenAIClient) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("chat completion: empty response")
	}

	return ports.Completion{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Ensure interface compliance.
var _ ports.LLMClient = (*OpenAIClient)(nil)
