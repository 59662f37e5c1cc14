// dwyagent runs the DWY tool-calling agent.
//
// Usage:
//
//	dwyagent serve   # JSON/HTTP API on :3000
//	dwyagent mcp     # MCP server on stdio
//	dwyagent chat    # interactive terminal chat
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/app"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/chat"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/httpapi"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcpserver"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

type flags struct {
	configPath string
	port       int
	backend    string
	model      string
	storage    string
	debug      bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "dwyagent",
		Short:         "Tool-calling LLM agent with planning, memory, marketing and content capabilities",
		Version:       telemetry.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", os.Getenv("DWY_CONFIG"), "path to a YAML config file")
	pf.IntVar(&f.port, "port", 0, "HTTP port (overrides config and PORT)")
	pf.StringVar(&f.backend, "backend", "", "LLM backend (ollama|anthropic|grok|openai|gemini|mock); empty runs in demo mode")
	pf.StringVar(&f.model, "model", "", "model name for the backend (overrides config and DWY_MODEL)")
	pf.StringVar(&f.storage, "storage", "", "storage driver (memory|sqlite|redis)")
	pf.BoolVar(&f.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the JSON/HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve the agent as MCP tools over stdio",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMCP(cmd.Context(), f)
			},
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Chat with the agent in the terminal",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runChat(cmd.Context(), f)
			},
		},
	)
	return root
}

// loadConfig applies flags on top of the file and environment.
func loadConfig(f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if name := strings.ToLower(f.backend); name != "" && name != cfg.Backend.Name {
		// Only a defaulted model follows the backend switch.
		if cfg.Backend.Model == config.DefaultModel(cfg.Backend.Name) {
			cfg.Backend.Model = config.DefaultModel(name)
		}
		cfg.Backend.Name = name
	}
	if f.model != "" {
		cfg.Backend.Model = f.model
	}
	if f.storage != "" {
		cfg.Storage.Driver = f.storage
	}
	if f.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func start(ctx context.Context, f *flags, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, opts)
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runServe(ctx context.Context, f *flags) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := start(ctx, f, app.Options{Console: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config.Server
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      httpapi.New(a.Agent, a.Logger, a.Meter).Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", srv.Addr, "backend", a.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, f *flags) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	// stdout carries the MCP protocol, so logs go to file only.
	a, err := start(ctx, f, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return server.ServeStdio(mcpserver.New(a.Agent, telemetry.ServiceVersion))
}

func runChat(ctx context.Context, f *flags) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := start(ctx, f, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []chat.Option
	if a.Ollama != nil {
		opts = append(opts, chat.WithModels(a.Ollama))
	}
	if registry := a.MCP(); registry != nil {
		opts = append(opts, chat.WithMCP(registry))
	}
	return chat.New(a.Agent, os.Stdin, os.Stdout, a.Logger, a.Backend, opts...).Run(ctx)
}
