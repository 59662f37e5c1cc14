package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/config"
)

var ErrToolNotFound = errors.New("tool not found")

// connectTimeout bounds the handshake and tool listing of one server, so a
// hung server cannot stall startup.
const connectTimeout = 10 * time.Second

// Client represents a connection to an MCP server
type Client interface {
	Name() string
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error)
	Close() error
}

// Tool represents an MCP tool available for invocation
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	ServerName  string         `json:"server"` // which server provides this tool
}

// transport moves one JSON-RPC exchange to the server and back.
type transport interface {
	roundTrip(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error)
	close() error
}

// rpcClient implements Client over any transport.
type rpcClient struct {
	name   string
	kind   string
	t      transport
	reqID  atomic.Int32
	logger *slog.Logger
}

func newRPCClient(name, kind string, t transport, logger *slog.Logger) *rpcClient {
	return &rpcClient{name: name, kind: kind, t: t, logger: logger}
}

func (c *rpcClient) Name() string { return c.name }

func (c *rpcClient) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ClientCapabilities{
			Roots: &RootsCapability{ListChanged: false},
		},
		ClientInfo: ClientInfo{Name: "dwyagent", Version: "1.0.0"},
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized",
		"client", c.name,
		"transport", c.kind,
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

func (c *rpcClient) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, info := range result.Tools {
		tools[i] = Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			ServerName:  c.name,
		}
	}
	return tools, nil
}

func (c *rpcClient) CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	var result CallToolResult
	if err := c.call(ctx, MethodCallTool, CallToolParams{Name: toolName, Arguments: args}, &result); err != nil {
		return nil, fmt.Errorf("call tool failed: %w", err)
	}
	c.logger.Info("called tool", "server", c.name, "tool", toolName)
	return &result, nil
}

func (c *rpcClient) Close() error {
	err := c.t.close()
	c.logger.Info("closed MCP client", "name", c.name, "transport", c.kind)
	return err
}

func (c *rpcClient) call(ctx context.Context, method string, params, result any) error {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      int(c.reqID.Add(1)),
		Method:  method,
		Params:  params,
	}

	resp, err := c.t.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// Registry manages the connected MCP clients and the tools they expose.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	order   []string
	tools   []Tool
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{clients: make(map[string]Client), logger: logger}
}

// Register adds a client to the registry
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.Name()]; !ok {
		r.order = append(r.order, client.Name())
	}
	r.clients[client.Name()] = client
}

// Get retrieves a client by name
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// All returns all registered clients in registration order
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.order))
	for _, name := range r.order {
		clients = append(clients, r.clients[name])
	}
	return clients
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// RefreshTools fetches the tool list from every server. Servers that fail
// are logged and skipped.
func (r *Registry) RefreshTools(ctx context.Context) []Tool {
	var tools []Tool
	for _, client := range r.All() {
		list, err := client.ListTools(ctx)
		if err != nil {
			r.logger.Warn("failed to list tools from MCP server", "server", client.Name(), "error", err)
			continue
		}
		tools = append(tools, list...)
		r.logger.Info("loaded tools from MCP server", "server", client.Name(), "count", len(list))
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return tools
}

// Tools returns the tools found by the last refresh.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// CallTool routes a call to the server that provides toolName.
func (r *Registry) CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error) {
	var server string
	for _, tool := range r.Tools() {
		if tool.Name == toolName {
			server = tool.ServerName
			break
		}
	}
	if server == "" {
		return nil, fmt.Errorf("%s: %w", toolName, ErrToolNotFound)
	}

	client, ok := r.Get(server)
	if !ok {
		return nil, fmt.Errorf("server %s not found for tool %s", server, toolName)
	}

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", toolName, err)
	}
	return result, nil
}

// Close closes all registered clients
func (r *Registry) Close() error {
	var errs []error
	for _, client := range r.All() {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client %s: %w", client.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Connect starts a client for every configured server and loads their
// tools. Servers that cannot be reached are logged and skipped.
func Connect(ctx context.Context, cfg config.MCPConfig, logger *slog.Logger) *Registry {
	registry := NewRegistry(logger)
	if !cfg.Enabled {
		return registry
	}

	for _, script := range cfg.LocalServers {
		client, err := NewStdioClient(script, script, logger)
		if err != nil {
			logger.Warn("failed to create stdio MCP client", "script", script, "error", err)
			continue
		}
		registry.add(ctx, client)
	}

	for _, serverURL := range cfg.RemoteServers {
		var (
			client Client
			err    error
		)
		if strings.HasPrefix(serverURL, "ws://") || strings.HasPrefix(serverURL, "wss://") {
			client, err = NewWebSocketClient(ctx, serverURL, serverURL, logger)
		} else {
			client, err = NewHTTPClient(serverURL, serverURL, logger)
		}
		if err != nil {
			logger.Warn("failed to create remote MCP client", "url", serverURL, "error", err)
			continue
		}
		registry.add(ctx, client)
	}

	refreshCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	tools := registry.RefreshTools(refreshCtx)
	logger.Info("MCP initialized", "servers", registry.Count(), "tools", len(tools))
	return registry
}

func (r *Registry) add(ctx context.Context, client Client) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Initialize(ctx); err != nil {
		r.logger.Warn("failed to initialize MCP client", "server", client.Name(), "error", err)
		client.Close()
		return
	}
	r.Register(client)
}
