// Package app wires configuration, telemetry, storage, the LLM backend and
// MCP clients into a ready orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/cache"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcp"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/redis"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/sqlite"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

// CacheTTL bounds how long a cached completion is reused.
const CacheTTL = time.Hour

// App holds the running agent and everything that must be released with it.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Meter   metric.Meter
	Agent   *orchestrator.Orchestrator
	Backend string
	// Ollama is the backend client when the backend is Ollama.
	Ollama *backend.Ollama

	store    storage.Store
	tools    *mcp.Registry
	shutdown func()
}

// Options adjusts how New builds the app.
type Options struct {
	// Console receives a copy of every log record. Nil logs to file only.
	Console io.Writer
}

// New builds and initializes the agent described by cfg. The caller must
// Close the returned App.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger, err := telemetry.InitLogger(telemetry.Options{
		LogDir:  cfg.Telemetry.LogDir,
		Debug:   cfg.Debug,
		Console: opts.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
		LogDir:  cfg.Telemetry.LogDir,
		Enabled: cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
		Backend:  cfg.Backend.Name,
		shutdown: shutdown,
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store

	llm, err := backend.New(ctx, cfg.Backend, backend.Instrumentation{
		Logger: a.Logger,
		Tracer: a.Tracer,
		Meter:  a.Meter,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", cfg.Backend.Name, err)
	}
	if llm == nil {
		a.Backend = "demo"
	}
	if ollama, ok := llm.(*backend.Ollama); ok {
		a.Ollama = ollama
	}

	a.tools = mcp.Connect(ctx, cfg.MCP, a.Logger)

	deps := capability.Deps{
		LLM:    llm,
		Store:  store,
		Tools:  a.tools,
		Logger: a.Logger,
		Tracer: a.Tracer,
		Meter:  a.Meter,
	}
	if cfg.Backend.Cache && llm != nil {
		deps.Cache = cache.New(CacheTTL)
	}

	agent, err := orchestrator.New(capability.NewSet(deps), orchestrator.Options{
		AgentName:   cfg.AgentName,
		StepTimeout: cfg.StepTimeout,
		Logger:      a.Logger,
		Tracer:      a.Tracer,
		Meter:       a.Meter,
	})
	if err != nil {
		return err
	}
	if err := agent.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	a.Agent = agent

	a.Logger.Info("agent ready",
		"agent", cfg.AgentName,
		"backend", a.Backend,
		"storage", cfg.Storage.Driver,
		"mcp_servers", a.tools.Count())
	return nil
}

// OpenStore opens the storage driver named by cfg.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory, "":
		return memory.New(), nil
	case config.StorageSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.StorageRedis:
		return redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	}
	return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
}

// MCP returns the registry of connected MCP servers, or nil when MCP is
// disabled.
func (a *App) MCP() *mcp.Registry {
	if !a.Config.MCP.Enabled {
		return nil
	}
	return a.tools
}

// Close releases MCP clients, storage and telemetry exporters.
func (a *App) Close() error {
	var errs []error
	if a.tools != nil {
		errs = append(errs, a.tools.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		a.shutdown()
	}
	return errors.Join(errs...)
}
