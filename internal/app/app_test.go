package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/app"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Telemetry.Enabled = false
	cfg.Telemetry.LogDir = t.TempDir()
	return cfg
}

func TestNewDemoMode(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(t), app.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Backend != "demo" {
		t.Errorf("Backend = %q, want demo", a.Backend)
	}
	if s := a.Agent.Status(); s.Status != "healthy" {
		t.Fatalf("agent not ready: %+v", s)
	}

	resp, err := a.Agent.ProcessMessage(context.Background(), "plan my launch", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected error response %v", resp.Metadata())
	}
}

func TestNewMockBackendWithSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Name = config.BackendMock
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "agent.db")

	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Backend != config.BackendMock {
		t.Errorf("Backend = %q", a.Backend)
	}
	if _, err := a.Agent.ProcessMessage(context.Background(), "remember my favourite colour is green", nil); err != nil {
		t.Fatal(err)
	}
}

func TestNewExposesOllamaAndMCP(t *testing.T) {
	demo, err := app.New(context.Background(), testConfig(t), app.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer demo.Close()
	if demo.Ollama != nil || demo.MCP() != nil {
		t.Fatal("demo mode without MCP should expose neither Ollama nor an MCP registry")
	}

	cfg := testConfig(t)
	cfg.Backend.Name = config.BackendOllama
	cfg.Backend.Model = "mistral:latest"
	cfg.MCP.Enabled = true

	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Ollama == nil || a.Ollama.Model() != "mistral:latest" {
		t.Fatalf("Ollama = %+v", a.Ollama)
	}
	if a.MCP() == nil {
		t.Fatal("MCP registry missing while MCP is enabled")
	}
}

func TestNewFailsWithoutAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Name = config.BackendOpenAI
	cfg.Backend.OpenAIAPIKey = ""

	if _, err := app.New(context.Background(), cfg, app.Options{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := app.OpenStore(context.Background(), config.StorageConfig{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
