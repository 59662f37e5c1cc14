package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const AnthropicBaseURL = "https://api.anthropic.com"

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent is one block of a response
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      map[string]any     `json:"usage"`
}

type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	in         Instrumentation
}

// NewAnthropic creates a Messages API client. An empty baseURL uses the
// public endpoint.
func NewAnthropic(apiKey, model, baseURL string, httpClient *http.Client, in Instrumentation) *Anthropic {
	if baseURL == "" {
		baseURL = AnthropicBaseURL
	}
	return &Anthropic{apiKey: apiKey, model: model, baseURL: baseURL, httpClient: httpClient, in: in.withDefaults()}
}

func (c *Anthropic) Name() string { return "anthropic" }

func (c *Anthropic) Complete(ctx context.Context, messages []Message) (reply string, err error) {
	ctx, done := c.in.start(ctx, "anthropic")
	defer func() { done(err) }()

	system, turns := splitSystem(messages)
	reqMessages := make([]AnthropicMessage, len(turns))
	for i, msg := range turns {
		reqMessages[i] = AnthropicMessage{Role: msg.Role, Content: msg.Content}
	}

	jsonData, err := json.Marshal(AnthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    system,
		Messages:  reqMessages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	usage := make(map[string]int64)
	for key, value := range apiResp.Usage {
		if n, ok := value.(float64); ok {
			usage[key] = int64(n)
		}
	}
	c.in.recordUsage(ctx, "anthropic", usage)

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			return content.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Anthropic")
}
