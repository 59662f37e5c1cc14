package main

import (
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
)

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("DWY_STORAGE", "memory")

	cfg, err := loadConfig(&flags{port: 8081, backend: "MOCK", storage: config.StorageSQLite, debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Backend.Name != config.BackendMock {
		t.Errorf("backend = %q", cfg.Backend.Name)
	}
	if cfg.Storage.Driver != config.StorageSQLite || !cfg.Debug {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigBackendModel(t *testing.T) {
	tests := []struct {
		name      string
		envModel  string
		f         flags
		wantModel string
	}{
		{
			name:      "same backend keeps configured model",
			envModel:  "mistral:latest",
			f:         flags{backend: "OLLAMA"},
			wantModel: "mistral:latest",
		},
		{
			name:      "switch replaces defaulted model",
			f:         flags{backend: config.BackendAnthropic},
			wantModel: config.DefaultModel(config.BackendAnthropic),
		},
		{
			name:      "switch keeps explicit model",
			envModel:  "llama3.1:70b",
			f:         flags{backend: config.BackendGrok},
			wantModel: "llama3.1:70b",
		},
		{
			name:      "model flag wins",
			envModel:  "mistral:latest",
			f:         flags{backend: config.BackendOpenAI, model: "gpt-4.1"},
			wantModel: "gpt-4.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DWY_BACKEND", config.BackendOllama)
			t.Setenv("DWY_MODEL", tc.envModel)

			cfg, err := loadConfig(&tc.f)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Backend.Model != tc.wantModel {
				t.Errorf("model = %q, want %q", cfg.Backend.Model, tc.wantModel)
			}
		})
	}
}

func TestLoadConfigRejectsUnknownStorage(t *testing.T) {
	if _, err := loadConfig(&flags{storage: "etcd"}); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "mcp", "chat"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("missing %s command", name)
		}
	}
}
