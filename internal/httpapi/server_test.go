package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/httpapi"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

func newAgent(t *testing.T, initialize bool) *orchestrator.Orchestrator {
	t.Helper()
	logger := telemetry.Discard()
	set := capability.NewSet(capability.Deps{Store: memory.New(), Logger: logger})
	o, err := orchestrator.New(set, orchestrator.Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if initialize {
		if err := o.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	return o
}

func newServer(t *testing.T, agent httpapi.Agent) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.New(agent, telemetry.Discard(), nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: invalid JSON response: %v", method, path, err)
		}
	}
	return resp, out
}

func TestChatPlanning(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	resp, body := do(t, srv, http.MethodPost, "/chat", `{"message":"plan my launch"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if text, ok := body["response"].(string); !ok || text == "" {
		t.Fatalf("missing response text: %v", body)
	}
	components := body["components"].(map[string]any)
	if components["planning"] == nil {
		t.Fatalf("components.planning is null: %v", components)
	}
	used := body["used_capabilities"].([]any)
	if used[len(used)-1] != "ai" {
		t.Fatalf("used_capabilities should end with ai: %v", used)
	}
	if resp.Header.Get(httpapi.RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	for _, body := range []string{
		``,
		`{}`,
		`{"message":""}`,
		`{"message":"   "}`,
		`{"message":null}`,
		`{"message":42}`,
		`{not json`,
	} {
		resp, out := do(t, srv, http.MethodPost, "/chat", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
			continue
		}
		if out["error"] == nil || out["example"] == nil {
			t.Errorf("body %q: missing error or example: %v", body, out)
		}
	}
}

func TestNotInitialized(t *testing.T) {
	srv := newServer(t, newAgent(t, false))

	resp, body := do(t, srv, http.MethodPost, "/chat", `{"message":"hello"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}

	resp, body = do(t, srv, http.MethodPost, "/workshop1/plan", `{"projectName":"x","description":"y"}`)
	if resp.StatusCode != http.StatusServiceUnavailable || body["error"] != "planning not initialized" {
		t.Fatalf("plan: status = %d, body %v", resp.StatusCode, body)
	}

	_, body = do(t, srv, http.MethodGet, "/health", "")
	if body["status"] != "initializing" {
		t.Fatalf("health = %v", body)
	}
}

func TestCapabilityRoutes(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	_, body := do(t, srv, http.MethodGet, "/workshops", "")
	if body["total"] != float64(6) {
		t.Fatalf("workshops = %v", body)
	}
	first := body["capabilities"].([]any)[0].(map[string]any)
	if first["name"] != "planning" || first["endpoint"] != "POST /workshop1/plan" || first["status"] != "ready" {
		t.Fatalf("unexpected first capability %v", first)
	}

	resp, body := do(t, srv, http.MethodPost, "/workshop1/plan", `{"description":"no name"}`)
	if resp.StatusCode != http.StatusBadRequest || body["example"] == nil {
		t.Fatalf("validation: status = %d, body %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/workshop1/plan", `{"projectName":"Launch","description":"Ship v1"}`)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("plan: status = %d, body %v", resp.StatusCode, body)
	}
	id := body["project"].(map[string]any)["id"].(string)

	resp, body = do(t, srv, http.MethodPost, "/workshop1/projects/"+id+"/complete-task", "")
	if resp.StatusCode != http.StatusOK || body["completed_task"] != "Define project requirements" {
		t.Fatalf("complete-task: status = %d, body %v", resp.StatusCode, body)
	}
	resp, body = do(t, srv, http.MethodGet, "/workshop1/projects/"+id, "")
	if resp.StatusCode != http.StatusOK || body["completed_tasks"] != float64(1) {
		t.Fatalf("project: status = %d, body %v", resp.StatusCode, body)
	}
	resp, _ = do(t, srv, http.MethodGet, "/workshop1/projects/proj_missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status = %d", resp.StatusCode)
	}

	resp, body = do(t, srv, http.MethodPost, "/capabilities/tools", `{"tool":"text_stats","arguments":{"text":"a b"}}`)
	if resp.StatusCode != http.StatusOK || body["capability"] != "tools" {
		t.Fatalf("tools by name: status = %d, body %v", resp.StatusCode, body)
	}
	resp, _ = do(t, srv, http.MethodPost, "/capabilities/teleport", `{}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown capability status = %d", resp.StatusCode)
	}

	_, body = do(t, srv, http.MethodGet, "/workshop5/tools", "")
	if body["total"] != float64(2) {
		t.Fatalf("tools = %v", body)
	}
}

func TestConversationRoute(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	do(t, srv, http.MethodPost, "/chat", `{"message":"hi","context":{"conversation_id":"conv_http"}}`)
	resp, body := do(t, srv, http.MethodGet, "/conversations/conv_http", "")
	if resp.StatusCode != http.StatusOK || body["message_count"] != float64(2) {
		t.Fatalf("conversation: status = %d, body %v", resp.StatusCode, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	resp, body := do(t, srv, http.MethodGet, "/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	endpoints := body["available_endpoints"].([]any)
	if len(endpoints) == 0 || body["message"] != "Route GET /nope not found" {
		t.Fatalf("unexpected 404 body %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, newAgent(t, true))

	resp, _ := do(t, srv, http.MethodOptions, "/chat", "")
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: status = %d, headers %v", resp.StatusCode, resp.Header)
	}
}

func TestBodyTooLarge(t *testing.T) {
	handler := httpapi.New(newAgent(t, true), telemetry.Discard(), nil).Handler()

	big := `{"message":"` + strings.Repeat("a", httpapi.MaxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(big)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

type panickingAgent struct {
	*orchestrator.Orchestrator
}

func (panickingAgent) ProcessMessage(context.Context, string, map[string]any) (*domain.Response, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	srv := newServer(t, panickingAgent{newAgent(t, true)})

	resp, body := do(t, srv, http.MethodPost, "/chat", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "Internal server error" {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
}
