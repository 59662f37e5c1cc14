package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
)

var prompt = []backend.Message{
	{Role: backend.RoleSystem, Content: "be brief"},
	{Role: backend.RoleUser, Content: "plan my launch"},
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		var req backend.AnthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.System != "be brief" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("system turn not lifted: %+v", req)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"Here is a plan"}],"usage":{"input_tokens":12,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c := backend.NewAnthropic("sk-test", "claude-test", srv.URL, srv.Client(), backend.Instrumentation{})
	got, err := c.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Here is a plan" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := backend.NewAnthropic("sk-test", "claude-test", srv.URL, srv.Client(), backend.Instrumentation{})
	if _, err := c.Complete(context.Background(), prompt); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestOllamaCompleteAndListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var req backend.OllamaRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model != "llama3:latest" || req.Stream {
				t.Errorf("unexpected request %+v", req)
			}
			w.Write([]byte(`{"model":"llama3:latest","message":{"role":"assistant","content":"ok"},"done":true}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3:latest","size":4000000000}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := backend.NewOllama(srv.URL+"/", "llama3:latest", srv.Client(), backend.Instrumentation{})
	got, err := c.Complete(context.Background(), prompt)
	if err != nil || got != "ok" {
		t.Fatalf("Complete = %q, %v", got, err)
	}

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].Name != "llama3:latest" {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestOpenAICompatibleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer xai-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"grok-3-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"grok says hi"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	}))
	defer srv.Close()

	c := backend.NewOpenAI("grok", "xai-test", "grok-3-mini", srv.URL+"/v1", srv.Client(), backend.Instrumentation{})
	got, err := c.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "grok says hi" || c.Name() != "grok" {
		t.Fatalf("unexpected reply %q from %s", got, c.Name())
	}
}

func TestNewSelectsClient(t *testing.T) {
	ctx := context.Background()

	c, err := backend.New(ctx, config.BackendConfig{Name: config.BackendDemo}, backend.Instrumentation{})
	if err != nil || c != nil {
		t.Fatalf("demo mode should yield no client, got %v, %v", c, err)
	}

	c, err = backend.New(ctx, config.BackendConfig{Name: config.BackendMock}, backend.Instrumentation{})
	if err != nil || c.Name() != "mock" {
		t.Fatalf("expected mock client, got %v, %v", c, err)
	}

	if _, err := backend.New(ctx, config.BackendConfig{Name: config.BackendAnthropic}, backend.Instrumentation{}); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := backend.New(ctx, config.BackendConfig{Name: "watson"}, backend.Instrumentation{}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestMockEchoesAndRecords(t *testing.T) {
	m := &backend.Mock{}
	got, _ := m.Complete(context.Background(), prompt)
	if got != "mock reply: plan my launch" {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(m.Calls()) != 1 || len(m.Calls()[0]) != 2 {
		t.Fatalf("calls not recorded: %+v", m.Calls())
	}
}

func TestCompleteRecordsSpanStatus(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	c := backend.NewAnthropic("sk-test", "claude-test", srv.URL, srv.Client(),
		backend.Instrumentation{Tracer: provider.Tracer("test")})

	if _, err := c.Complete(context.Background(), prompt); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	fail.Store(true)
	if _, err := c.Complete(context.Background(), prompt); err == nil {
		t.Fatal("expected API error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "anthropic_api_call" || spans[0].Status().Code != codes.Unset {
		t.Errorf("successful call span: %s %v", spans[0].Name(), spans[0].Status())
	}
	failed := spans[1]
	if failed.Status().Code != codes.Error || !strings.Contains(failed.Status().Description, "503") {
		t.Errorf("failed call status = %v", failed.Status())
	}
	if len(failed.Events()) == 0 || failed.Events()[0].Name != "exception" {
		t.Errorf("failed call should record the error, events = %v", failed.Events())
	}
}
