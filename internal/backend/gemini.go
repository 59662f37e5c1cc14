package backend

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

type Gemini struct {
	client *genai.Client
	model  string
	in     Instrumentation
}

// NewGemini creates a client for the Gemini Developer API.
func NewGemini(ctx context.Context, apiKey, model string, httpClient *http.Client, in Instrumentation) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, in: in.withDefaults()}, nil
}

func (c *Gemini) Name() string { return "gemini" }

func (c *Gemini) Complete(ctx context.Context, messages []Message) (reply string, err error) {
	ctx, done := c.in.start(ctx, "gemini")
	defer func() { done(err) }()

	system, turns := splitSystem(messages)

	var contents []*genai.Content
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 2048,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if u := res.UsageMetadata; u != nil {
		c.in.recordUsage(ctx, "gemini", map[string]int64{
			"input_tokens":  int64(u.PromptTokenCount),
			"output_tokens": int64(u.CandidatesTokenCount),
		})
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
