package capability_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/cache"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

func newSet(t *testing.T, llm backend.Client) (*capability.Set, *capability.Registry, *memory.Store) {
	t.Helper()
	store := memory.New()
	set := capability.NewSet(capability.Deps{
		LLM:    llm,
		Store:  store,
		Cache:  cache.New(0),
		Logger: telemetry.Discard(),
	})
	registry, err := set.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if err := registry.InitializeAll(context.Background()); err != nil {
		t.Fatalf("InitializeAll: %v", err)
	}
	return set, registry, store
}

func TestInvokeBeforeInitialize(t *testing.T) {
	set := capability.NewSet(capability.Deps{Store: memory.New(), Logger: telemetry.Discard()})
	registry, err := set.Registry()
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range registry.All() {
		if _, err := c.Invoke(context.Background(), capability.Request{}); !errors.Is(err, capability.ErrNotInitialized) {
			t.Errorf("%s: expected ErrNotInitialized, got %v", c.Name(), err)
		}
	}
	if _, err := set.AI.Analyze(context.Background(), "plan"); !errors.Is(err, capability.ErrNotInitialized) {
		t.Errorf("Analyze: expected ErrNotInitialized, got %v", err)
	}
	if _, err := set.Memory.RelevantContext(context.Background()); !errors.Is(err, capability.ErrNotInitialized) {
		t.Errorf("RelevantContext: expected ErrNotInitialized, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	_, registry, _ := newSet(t, nil)

	want := []string{"planning", "memory", "marketing", "content", "tools", "ai"}
	if got := registry.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if _, err := registry.Get("teleport"); !errors.Is(err, capability.ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
	if err := registry.Register(registry.MustGet("ai")); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestValidation(t *testing.T) {
	_, registry, _ := newSet(t, nil)

	tests := []struct {
		name       string
		capability string
		req        capability.Request
	}{
		{"missing project name", "planning", capability.Request{"description": "x"}},
		{"blank description", "planning", capability.Request{"projectName": "x", "description": "  "}},
		{"goals not a list", "planning", capability.Request{"projectName": "x", "description": "y", "goals": "ship"}},
		{"missing content", "memory", capability.Request{"type": "note"}},
		{"missing product", "marketing", capability.Request{}},
		{"duration too long", "content", capability.Request{"topic": "x", "duration_seconds": float64(3600)}},
		{"unknown tool", "tools", capability.Request{"tool": "teleport"}},
		{"text_stats without text", "tools", capability.Request{"tool": "text_stats"}},
		{"missing prompt", "ai", capability.Request{}},
		{"unknown action", "ai", capability.Request{"action": "dance"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Invoke(context.Background(), tc.capability, tc.req)
			if !errors.Is(err, capability.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			var verr *capability.ValidationError
			if !errors.As(err, &verr) || verr.Capability != tc.capability {
				t.Fatalf("expected ValidationError for %s, got %#v", tc.capability, err)
			}
		})
	}
}

func TestCreatePlanDemo(t *testing.T) {
	_, registry, store := newSet(t, nil)
	ctx := context.Background()

	result, err := registry.Invoke(ctx, "planning", capability.Request{
		"projectName": "Launch",
		"description": "Ship v1",
		"goals":       []any{"Get 100 users"},
	})
	if err != nil {
		t.Fatalf("createPlan: %v", err)
	}
	if result["success"] != true || result["capability"] != "planning" || result["source"] != capability.SourceDemo {
		t.Fatalf("unexpected result envelope: %v", result)
	}

	project := result["project"].(*domain.Project)
	if project.TotalTasks != 9 || len(project.Phases) != 3 {
		t.Fatalf("expected 3 phases with 9 tasks, got %d/%d", len(project.Phases), project.TotalTasks)
	}
	if !slices.Equal(project.Goals, []string{"Get 100 users"}) {
		t.Fatalf("goals = %v", project.Goals)
	}
	if _, err := store.GetProject(ctx, project.ID); err != nil {
		t.Fatalf("project not saved: %v", err)
	}

	done, err := registry.Invoke(ctx, "planning", capability.Request{"action": "completeTask", "project_id": project.ID})
	if err != nil {
		t.Fatalf("completeTask: %v", err)
	}
	if done["completed_task"] != "Define project requirements" || done["progress"] != 11 {
		t.Fatalf("unexpected completeTask result: %v", done)
	}
}

func TestExecutionPlan(t *testing.T) {
	set, _, _ := newSet(t, nil)
	ctx := context.Background()

	tests := []struct {
		tools []string
		steps int
		total string
	}{
		{[]string{"planning"}, 1, "15 minutes"},
		{[]string{"planning", "memory", "content"}, 3, "55 minutes"},
		{[]string{"content", "marketing", "memory", "planning"}, 4, "1h 15m"},
		{nil, 0, "0 minutes"},
	}
	for _, tc := range tests {
		plan, err := set.Planning.CreateExecutionPlan(ctx, domain.ToolPlan{Tools: tc.tools})
		if err != nil {
			t.Fatal(err)
		}
		if len(plan.Steps) != tc.steps || plan.TotalEstimatedTime != tc.total {
			t.Errorf("tools %v: got %d steps, %q", tc.tools, len(plan.Steps), plan.TotalEstimatedTime)
		}
		for i, s := range plan.Steps {
			if s.Step != i+1 {
				t.Errorf("tools %v: step %d numbered %d", tc.tools, i, s.Step)
			}
		}
	}
}

func TestAnalyzeKeywords(t *testing.T) {
	set, _, _ := newSet(t, nil)

	tests := []struct {
		message string
		want    []string
	}{
		{"plan my launch", []string{"planning"}},
		{"grow my business", []string{"marketing", "business"}},
		{"make a VIDEO", []string{"video", "content"}},
		{"do you remember me", []string{"memory"}},
		{"project video for the market", []string{"planning", "marketing", "business", "video", "content"}},
		{"hello there", []string{"general"}},
	}
	for _, tc := range tests {
		a, err := set.AI.Analyze(context.Background(), tc.message)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(a.Intent, tc.want) {
			t.Errorf("Analyze(%q) intent = %v, want %v", tc.message, a.Intent, tc.want)
		}
		if a.Source != "demo_analysis" || a.Complexity != "medium" {
			t.Errorf("Analyze(%q) = %+v", tc.message, a)
		}
	}

	long, _ := set.AI.Analyze(context.Background(), strings.Repeat("x", 101))
	if long.Complexity != "high" {
		t.Errorf("long message complexity = %q", long.Complexity)
	}
}

func TestAnalyzeBackend(t *testing.T) {
	llm := &backend.Mock{Reply: "```json\n{\"intent\": [\"Marketing\", \"bogus\"], \"confidence\": 0.9}\n```"}
	set, _, _ := newSet(t, llm)

	a, err := set.AI.Analyze(context.Background(), "tell me something")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Intent, []string{"marketing"}) || a.Source != capability.SourceBackend || a.Confidence != 0.9 {
		t.Fatalf("unexpected analysis %+v", a)
	}
}

func TestAnalyzeFallsBackToKeywords(t *testing.T) {
	set, _, _ := newSet(t, &backend.Mock{Reply: "I am not JSON"})

	a, err := set.AI.Analyze(context.Background(), "plan a project")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a.Intent, []string{"planning"}) || a.Source != "demo_analysis" {
		t.Fatalf("unexpected analysis %+v", a)
	}
}

func TestFallbackIsMarked(t *testing.T) {
	llm := &backend.Mock{Err: errors.New("backend down")}
	_, registry, _ := newSet(t, llm)

	for _, tc := range []struct {
		capability string
		req        capability.Request
	}{
		{"marketing", capability.Request{"product": "Acme"}},
		{"content", capability.Request{"topic": "onboarding"}},
		{"ai", capability.Request{"prompt": "hi"}},
		{"planning", capability.Request{"projectName": "x", "description": "y"}},
	} {
		result, err := registry.Invoke(context.Background(), tc.capability, tc.req)
		if err != nil {
			t.Fatalf("%s: %v", tc.capability, err)
		}
		if result["source"] != capability.SourceDemo || result["fallback_reason"] != "backend down" {
			t.Errorf("%s: fallback not marked: %v", tc.capability, result)
		}
	}
}

func TestGenerateIsCached(t *testing.T) {
	llm := &backend.Mock{Reply: "cached answer"}
	_, registry, _ := newSet(t, llm)

	for range 2 {
		result, err := registry.Invoke(context.Background(), "ai", capability.Request{"prompt": "same question"})
		if err != nil {
			t.Fatal(err)
		}
		if result["text"] != "cached answer" || result["source"] != capability.SourceBackend {
			t.Fatalf("unexpected result %v", result)
		}
	}
	if n := len(llm.Calls()); n != 1 {
		t.Fatalf("expected one backend call, got %d", n)
	}
}

func TestMemoryConversation(t *testing.T) {
	set, registry, _ := newSet(t, nil)
	ctx := context.Background()
	msgContext := map[string]any{capability.ConversationKey: "conv_test"}

	msg := domain.NewMessage("remember the launch date", domain.SenderUser)
	if _, err := set.Memory.StoreMessage(ctx, msg, msgContext); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	resp := domain.NewResponse("Noted.", domain.Components{}, nil)
	if _, err := set.Memory.StoreInteraction(ctx, msg, resp, msgContext); err != nil {
		t.Fatalf("StoreInteraction: %v", err)
	}

	conv, err := set.Memory.Conversation(ctx, "conv_test")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 2 || !msgs[0].IsFromUser() || !msgs[1].IsFromAgent() || msgs[1].Content() != "Noted." {
		t.Fatalf("unexpected conversation messages: %v", msgs)
	}

	mc, err := set.Memory.RelevantContext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if mc.ContextSize != 2 || len(mc.RecentMessages) != 2 {
		t.Fatalf("unexpected context %+v", mc)
	}

	if _, err := registry.Invoke(ctx, "memory", capability.Request{"content": "launch moved", "tags": []any{"launch"}}); err != nil {
		t.Fatal(err)
	}
	found, err := registry.Invoke(ctx, "memory", capability.Request{"action": "recall", "query": "LAUNCH"})
	if err != nil {
		t.Fatal(err)
	}
	if found["count"] != 3 {
		t.Fatalf("recall count = %v", found["count"])
	}
}

func TestBuiltinTools(t *testing.T) {
	set, registry, _ := newSet(t, nil)

	result, err := registry.Invoke(context.Background(), "tools", capability.Request{
		"tool":      "text_stats",
		"arguments": map[string]any{"text": "hello tool world\nline two"},
	})
	if err != nil {
		t.Fatal(err)
	}
	stats := result["result"].(map[string]int)
	if stats["words"] != 5 || stats["lines"] != 2 || stats["chars"] != 25 {
		t.Fatalf("unexpected stats %v", stats)
	}

	tools, err := set.Tools.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 || tools[0].Name != "text_stats" || tools[1].Name != "time_now" {
		t.Fatalf("unexpected tools %+v", tools)
	}
}

func TestPlanTools(t *testing.T) {
	set, _, _ := newSet(t, nil)

	plan, err := set.Tools.PlanTools(context.Background(), domain.Analysis{Intent: []string{"marketing", "business", "planning"}})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.NeedsPlanning || !slices.Equal(plan.Tools, []string{"planning", "marketing"}) {
		t.Fatalf("unexpected plan %+v", plan)
	}

	plan, _ = set.Tools.PlanTools(context.Background(), domain.Analysis{Intent: []string{"general"}})
	if plan.NeedsPlanning || len(plan.Tools) != 0 {
		t.Fatalf("general intent should plan nothing, got %+v", plan)
	}
}

func TestSynthesizeDemo(t *testing.T) {
	set, _, _ := newSet(t, nil)
	in := capability.SynthesisInput{
		Message:    "plan my launch",
		Components: domain.Components{Planning: map[string]any{"steps": 1}},
	}

	first, err := set.AI.Synthesize(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := set.AI.Synthesize(context.Background(), in)
	if first != second {
		t.Fatal("demo synthesis should be deterministic")
	}
	if !strings.Contains(first, "plan my launch") || !strings.Contains(first, "engaged planning") ||
		!strings.HasSuffix(first, "connect a real AI backend for enhanced capabilities.") {
		t.Fatalf("unexpected text %q", first)
	}
}
