package mcpserver_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcpserver"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

func newAgent(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	logger := telemetry.Discard()
	set := capability.NewSet(capability.Deps{Store: memory.New(), Logger: logger})
	o, err := orchestrator.New(set, orchestrator.Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return o
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if r == nil || len(r.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

func TestChatDefinition(t *testing.T) {
	def := mcpserver.NewChatHandler(newAgent(t)).Definition()

	if def.Name != "dwy_chat" {
		t.Errorf("name = %q", def.Name)
	}
	if _, ok := def.InputSchema.Properties["message"]; !ok {
		t.Error("missing 'message' property")
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "message" {
		t.Errorf("required = %v", def.InputSchema.Required)
	}
}

func TestChatHandle(t *testing.T) {
	h := mcpserver.NewChatHandler(newAgent(t))

	result, err := h.Handle(context.Background(), makeReq(map[string]interface{}{
		"message":         "plan my launch",
		"conversation_id": "conv_mcp",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if body["response"] == "" || body["components"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	h := mcpserver.NewChatHandler(newAgent(t))

	for _, args := range []map[string]interface{}{{}, {"message": "  "}} {
		result, err := h.Handle(context.Background(), makeReq(args))
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError || !strings.Contains(resultText(t, result), "'message' is required") {
			t.Errorf("args %v: expected required-message error", args)
		}
	}
}

func TestCapabilityTool(t *testing.T) {
	agent := newAgent(t)
	h := mcpserver.NewCapabilityHandler(agent, agent.Registry().MustGet("tools"))

	if def := h.Definition(); def.Name != "dwy_tools" {
		t.Fatalf("name = %q", def.Name)
	}

	result, err := h.Handle(context.Background(), makeReq(map[string]interface{}{
		"payload": `{"tool":"text_stats","arguments":{"text":"one two three"}}`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, `"words": 3`) {
		t.Fatalf("unexpected result %s", text)
	}
}

func TestCapabilityToolErrors(t *testing.T) {
	agent := newAgent(t)
	h := mcpserver.NewCapabilityHandler(agent, agent.Registry().MustGet("planning"))

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"bad json", `{nope`, "must be a JSON object"},
		{"missing fields", `{}`, "planning failed"},
		{"unknown action", `{"action":"teleport"}`, "planning failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), makeReq(map[string]interface{}{"payload": tt.payload}))
			if err != nil {
				t.Fatal(err)
			}
			if !result.IsError || !strings.Contains(resultText(t, result), tt.want) {
				t.Fatalf("expected error containing %q, got %q", tt.want, resultText(t, result))
			}
		})
	}
}

func TestNewListsTools(t *testing.T) {
	s := mcpserver.New(newAgent(t), "test")

	msg := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"dwy_chat", "dwy_planning", "dwy_memory", "dwy_marketing", "dwy_content", "dwy_tools", "dwy_ai"} {
		if !strings.Contains(string(b), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, b)
		}
	}
}
