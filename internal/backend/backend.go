// Package backend talks to the LLM providers used when the agent runs
// outside demo mode.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    string
	Content string
}

// Client completes a chat prompt.
type Client interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Instrumentation is shared by every client.
type Instrumentation struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

func (in Instrumentation) withDefaults() Instrumentation {
	if in.Logger == nil {
		in.Logger = slog.Default()
	}
	if in.Tracer == nil || in.Meter == nil {
		tracer, meter := telemetry.Noop()
		if in.Tracer == nil {
			in.Tracer = tracer
		}
		if in.Meter == nil {
			in.Meter = meter
		}
	}
	return in
}

// start opens a span for one provider call and returns a func that ends
// it, recording the call duration and the error the call returned.
func (in Instrumentation) start(ctx context.Context, provider string) (context.Context, func(error)) {
	ctx, span := in.Tracer.Start(ctx, provider+"_api_call",
		trace.WithAttributes(attribute.String("llm.provider", provider)))
	begin := time.Now()
	return ctx, func(err error) {
		telemetry.RecordDuration(ctx, in.Meter, "http.client.request.duration", time.Since(begin),
			metric.WithAttributes(attribute.String("llm.provider", provider)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// recordUsage records token usage counters as llm.usage.<key>.
func (in Instrumentation) recordUsage(ctx context.Context, provider string, usage map[string]int64) {
	for key, value := range usage {
		telemetry.AddCount(ctx, in.Meter, fmt.Sprintf("llm.usage.%s", key), value,
			metric.WithAttributes(attribute.String("llm.provider", provider)))
	}
}

// New builds the client named by cfg. It returns a nil Client in demo mode.
func New(ctx context.Context, cfg config.BackendConfig, in Instrumentation) (Client, error) {
	in = in.withDefaults()
	httpClient := &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = config.DefaultModel(cfg.Name)
	}

	switch cfg.Name {
	case config.BackendDemo:
		return nil, nil
	case config.BackendMock:
		return &Mock{}, nil
	case config.BackendOllama:
		return NewOllama(cfg.OllamaHost, model, httpClient, in), nil
	case config.BackendAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropic(cfg.AnthropicAPIKey, model, "", httpClient, in), nil
	case config.BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAI(config.BackendOpenAI, cfg.OpenAIAPIKey, model, "", httpClient, in), nil
	case config.BackendGrok:
		if cfg.GrokAPIKey == "" {
			return nil, fmt.Errorf("GROK_API_KEY not set")
		}
		return NewOpenAI(config.BackendGrok, cfg.GrokAPIKey, model, GrokBaseURL, httpClient, in), nil
	case config.BackendGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, model, httpClient, in)
	}
	return nil, fmt.Errorf("unknown backend: %s", cfg.Name)
}

// splitSystem separates system turns, which some providers take as a
// top-level field, from the conversation.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
