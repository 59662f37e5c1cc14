package orchestrator_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

// faultyStore fails the operations whose error is set.
type faultyStore struct {
	storage.Store
	putErr    error
	recentErr error
}

func (s *faultyStore) PutEntry(ctx context.Context, e domain.MemoryEntry) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.PutEntry(ctx, e)
}

func (s *faultyStore) RecentEntries(ctx context.Context, limit int) ([]domain.MemoryEntry, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.Store.RecentEntries(ctx, limit)
}

func newOrchestrator(t *testing.T, store storage.Store, initialize bool) *orchestrator.Orchestrator {
	t.Helper()
	logger := telemetry.Discard()
	set := capability.NewSet(capability.Deps{Store: store, Logger: logger})
	o, err := orchestrator.New(set, orchestrator.Options{AgentName: "test agent", Logger: logger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if initialize {
		if err := o.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	return o
}

func TestProcessMessageBeforeInitialize(t *testing.T) {
	o := newOrchestrator(t, memory.New(), false)

	if _, err := o.ProcessMessage(context.Background(), "hi", nil); !errors.Is(err, capability.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := o.ExecuteCapability(context.Background(), "ai", capability.Request{"prompt": "x"}); !errors.Is(err, capability.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from capability, got %v", err)
	}
	if s := o.Status(); s.Status != "initializing" || s.Capabilities != 6 {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestProcessMessagePlanning(t *testing.T) {
	store := memory.New()
	o := newOrchestrator(t, store, true)

	resp, err := o.ProcessMessage(context.Background(), "plan my launch", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected error response: %v", resp.Metadata())
	}

	c := resp.Components()
	plan, ok := c.Planning.(*capability.ExecutionPlan)
	if !ok || len(plan.Steps) != 1 || plan.TotalEstimatedTime != "15 minutes" {
		t.Fatalf("unexpected planning component %#v", c.Planning)
	}
	if c.Marketing != nil || c.Content != nil {
		t.Fatalf("marketing and content should not run: %+v", c)
	}
	if c.Memory != "stored" {
		t.Fatalf("memory component = %v", c.Memory)
	}

	want := []string{"planning", "memory", "tools", "ai"}
	if got := resp.UsedCapabilities(); !slices.Equal(got, want) {
		t.Fatalf("UsedCapabilities() = %v, want %v", got, want)
	}
	if md := resp.Metadata(); md["processed_by"] != "test agent" || md["timestamp"] == nil {
		t.Fatalf("unexpected metadata %v", md)
	}

	// message plus interaction
	if n, _ := store.CountEntries(context.Background()); n != 2 {
		t.Fatalf("expected 2 memory entries, got %d", n)
	}
}

func TestProcessMessageBranches(t *testing.T) {
	o := newOrchestrator(t, memory.New(), true)

	resp, err := o.ProcessMessage(context.Background(), "make a video for my business", nil)
	if err != nil {
		t.Fatal(err)
	}
	c := resp.Components()
	if c.Planning != nil || c.Marketing == nil || c.Content == nil {
		t.Fatalf("unexpected components %+v", c)
	}

	resp, _ = o.ProcessMessage(context.Background(), "hello", nil)
	if got := resp.UsedCapabilities(); !slices.Equal(got, []string{"memory", "ai"}) {
		t.Fatalf("general message used %v", got)
	}
}

func TestMemoryFailureIsNotFatal(t *testing.T) {
	store := &faultyStore{Store: memory.New(), putErr: errors.New("disk full")}
	o := newOrchestrator(t, store, true)

	resp, err := o.ProcessMessage(context.Background(), "plan my launch", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsError() {
		t.Fatalf("memory failure must not fail the message: %v", resp.Metadata())
	}
	if resp.Components().Planning == nil || resp.Components().Memory != nil {
		t.Fatalf("unexpected components %+v", resp.Components())
	}
	if md := resp.Metadata(); md["memory_error"] == nil {
		t.Fatalf("memory_error not recorded: %v", md)
	}
}

func TestProcessingErrorReturnsApology(t *testing.T) {
	store := &faultyStore{Store: memory.New(), recentErr: errors.New("read failed")}
	o := newOrchestrator(t, store, true)

	resp, err := o.ProcessMessage(context.Background(), "plan my launch", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != orchestrator.Apology || !resp.IsError() {
		t.Fatalf("expected apology, got %q", resp.Text())
	}
	md := resp.Metadata()
	if md["error"] != true || md["error_message"] == nil {
		t.Fatalf("unexpected metadata %v", md)
	}
	if got := resp.UsedCapabilities(); !slices.Equal(got, []string{"ai"}) {
		t.Fatalf("apology should carry no components, got %v", got)
	}
}

func TestExecuteCapability(t *testing.T) {
	o := newOrchestrator(t, memory.New(), true)
	ctx := context.Background()

	if _, err := o.ExecuteCapability(ctx, "teleport", nil); !errors.Is(err, capability.ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}

	result, err := o.ExecuteCapability(ctx, "planning", capability.Request{"projectName": "Docs", "description": "Write docs"})
	if err != nil {
		t.Fatal(err)
	}
	id := result["project"].(*domain.Project).ID

	status, err := o.ProjectStatus(ctx, id)
	if err != nil || status["progress"] != 0 {
		t.Fatalf("ProjectStatus = %v, %v", status, err)
	}
	if _, err := o.ProjectStatus(ctx, "proj_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if s := o.Status(); s.Status != "healthy" || !slices.Contains(s.Available, "tools") {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestConversationThreading(t *testing.T) {
	o := newOrchestrator(t, memory.New(), true)
	ctx := context.Background()
	msgContext := map[string]any{capability.ConversationKey: "conv_1"}

	for _, text := range []string{"hello", "plan my week"} {
		if _, err := o.ProcessMessage(ctx, text, msgContext); err != nil {
			t.Fatal(err)
		}
	}
	conv, err := o.Conversation(ctx, "conv_1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount() != 4 {
		t.Fatalf("expected 4 messages, got %d", conv.MessageCount())
	}
}
