package backend

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// GrokBaseURL is xAI's OpenAI-compatible endpoint.
const GrokBaseURL = "https://api.x.ai/v1"

// OpenAI serves OpenAI and every OpenAI-compatible API (Grok).
type OpenAI struct {
	name   string
	model  string
	client *openai.Client
	in     Instrumentation
}

// NewOpenAI creates a chat completions client. An empty baseURL uses the
// OpenAI endpoint.
func NewOpenAI(name, apiKey, model, baseURL string, httpClient *http.Client, in Instrumentation) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		in:     in.withDefaults(),
	}
}

func (c *OpenAI) Name() string { return c.name }

func (c *OpenAI) Complete(ctx context.Context, messages []Message) (reply string, err error) {
	ctx, done := c.in.start(ctx, c.name)
	defer func() { done(err) }()

	reqMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: reqMessages,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion failed: %w", c.name, err)
	}

	c.in.recordUsage(ctx, c.name, map[string]int64{
		"input_tokens":  int64(resp.Usage.PromptTokens),
		"output_tokens": int64(resp.Usage.CompletionTokens),
	})

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from %s", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}
