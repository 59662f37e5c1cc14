// Package chat is an interactive terminal front end for the agent.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcp"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/orchestrator"
)

// Agent is the part of the orchestrator the REPL drives.
type Agent interface {
	Status() orchestrator.Status
	Registry() *capability.Registry
	ProcessMessage(ctx context.Context, text string, msgContext map[string]any) (*domain.Response, error)
	ListTools(ctx context.Context) ([]capability.ToolInfo, error)
}

// ModelLister lists the models a local backend has installed.
type ModelLister interface {
	Model() string
	ListModels(ctx context.Context) ([]backend.OllamaModel, error)
}

type Option func(*REPL)

// WithModels enables /list-ollama-models.
func WithModels(models ModelLister) Option {
	return func(r *REPL) { r.models = models }
}

// WithMCP enables the /mcp-* commands against registry.
func WithMCP(registry *mcp.Registry) Option {
	return func(r *REPL) { r.mcp = registry }
}

// REPL reads messages line by line and prints the agent's replies. Every
// message in a session is threaded into the same conversation.
type REPL struct {
	agent   Agent
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	backend string
	session string
	models  ModelLister
	mcp     *mcp.Registry
}

func New(agent Agent, in io.Reader, out io.Writer, logger *slog.Logger, backendName string, opts ...Option) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	r := &REPL{
		agent:   agent,
		in:      in,
		out:     out,
		logger:  logger,
		backend: backendName,
		session: newSessionID(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newSessionID() string {
	return "session_" + uuid.NewString()[:8]
}

// Session returns the conversation id of the current session.
func (r *REPL) Session() string { return r.session }

// handleCommand runs a slash command and reports whether the REPL should exit.
func (r *REPL) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		r.session = newSessionID()
		r.logger.Info("started new session", "session_id", r.session)
		fmt.Fprintln(r.out, "Started new session:", r.session)
		return false, nil

	case "/capabilities":
		for _, c := range r.agent.Registry().All() {
			fmt.Fprintf(r.out, "  %-10s POST %-20s %s\n", c.Name(), c.Route(), c.Description())
		}
		return false, nil

	case "/status":
		s := r.agent.Status()
		fmt.Fprintf(r.out, "%s: %s (%d capabilities, backend %s)\n", s.Agent, s.Status, s.Capabilities, r.backend)
		return false, nil

	case "/list-ollama-models":
		if r.models == nil {
			fmt.Fprintln(r.out, "The current backend is not Ollama.")
			return false, nil
		}
		models, err := r.models.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		fmt.Fprintln(r.out, "Available Ollama models:")
		for i, m := range models {
			current := ""
			if m.Name == r.models.Model() {
				current = " (current)"
			}
			fmt.Fprintf(r.out, "%d. %s - %.2f GB%s\n", i+1, m.Name, float64(m.Size)/(1<<30), current)
		}
		return false, nil

	case "/mcp-list":
		tools, err := r.agent.ListTools(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list tools: %w", err)
		}
		fmt.Fprintln(r.out, "Available tools:")
		for i, tool := range tools {
			fmt.Fprintf(r.out, "%d. %s (%s)\n", i+1, tool.Name, tool.Source)
			fmt.Fprintf(r.out, "   %s\n", tool.Description)
		}
		return false, nil

	case "/mcp-servers":
		if r.mcp == nil {
			fmt.Fprintln(r.out, "MCP is not enabled. Set DWY_MCP_ENABLED=true to enable it.")
			return false, nil
		}
		clients := r.mcp.All()
		if len(clients) == 0 {
			fmt.Fprintln(r.out, "No MCP servers connected.")
			return false, nil
		}
		fmt.Fprintln(r.out, "Connected MCP servers:")
		for i, client := range clients {
			fmt.Fprintf(r.out, "%d. %s\n", i+1, client.Name())
		}
		fmt.Fprintf(r.out, "Total: %d servers, %d tools\n", len(clients), len(r.mcp.Tools()))
		return false, nil

	case "/mcp-reload":
		if r.mcp == nil {
			fmt.Fprintln(r.out, "MCP is not enabled. Set DWY_MCP_ENABLED=true to enable it.")
			return false, nil
		}
		tools := r.mcp.RefreshTools(ctx)
		r.logger.Info("reloaded MCP tools", "tools", len(tools), "servers", r.mcp.Count())
		fmt.Fprintf(r.out, "Reloaded MCP tools. Total: %d tools from %d servers\n", len(tools), r.mcp.Count())
		return false, nil

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /quit, /exit          - Exit the chat")
		fmt.Fprintln(r.out, "  /new-session          - Start a new conversation")
		fmt.Fprintln(r.out, "  /capabilities         - List the agent's capabilities")
		fmt.Fprintln(r.out, "  /status               - Show agent status")
		fmt.Fprintln(r.out, "  /mcp-list             - List built-in and MCP tools")
		if r.models != nil {
			fmt.Fprintln(r.out, "  /list-ollama-models   - List installed Ollama models")
		}
		if r.mcp != nil {
			fmt.Fprintln(r.out, "  /mcp-servers          - Show connected MCP servers")
			fmt.Fprintln(r.out, "  /mcp-reload           - Reload tools from MCP servers")
		}
		fmt.Fprintln(r.out, "  /help                 - Show this help message")
		return false, nil
	}
	return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
}

// Run reads from the input until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "=== DWY Agent ===")
	fmt.Fprintf(r.out, "Session: %s\n", r.session)
	fmt.Fprintf(r.out, "Backend: %s\n", r.backend)
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(r.out)

	scanner := bufio.NewScanner(r.in)
	for ctx.Err() == nil {
		fmt.Fprint(r.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		resp, err := r.agent.ProcessMessage(ctx, input, map[string]any{capability.ConversationKey: r.session})
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			r.logger.Error("failed to process message", "error", err)
			continue
		}

		fmt.Fprintf(r.out, "Bot: %s\n", resp.Text())
		fmt.Fprintf(r.out, "     [%s]\n\n", strings.Join(resp.UsedCapabilities(), ", "))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(r.out, "Goodbye!")
	return nil
}
