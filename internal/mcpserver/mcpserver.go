// Package mcpserver exposes the agent's chat pipeline and capabilities as
// MCP tools, so editors and other agents can drive it over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

const (
	ServerName = "dwyagent"
	ChatTool   = "dwy_chat"
	toolPrefix = "dwy_"
)

// Agent is the part of the orchestrator the MCP tools call.
type Agent interface {
	Registry() *capability.Registry
	ProcessMessage(ctx context.Context, text string, msgContext map[string]any) (*domain.Response, error)
	ExecuteCapability(ctx context.Context, name string, req capability.Request) (capability.Result, error)
}

// New builds an MCP server with dwy_chat plus one dwy_<name> tool per
// registered capability.
func New(agent Agent, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Use dwy_chat for free-form requests. "+
			"Use the dwy_<capability> tools to call one capability directly with a JSON payload."),
	)

	chat := NewChatHandler(agent)
	s.AddTool(chat.Definition(), chat.Handle)

	for _, c := range agent.Registry().All() {
		h := NewCapabilityHandler(agent, c)
		s.AddTool(h.Definition(), h.Handle)
	}
	return s
}

// ChatHandler handles the dwy_chat tool.
type ChatHandler struct {
	agent Agent
}

func NewChatHandler(agent Agent) *ChatHandler {
	return &ChatHandler{agent: agent}
}

func (h *ChatHandler) Definition() mcp.Tool {
	return mcp.NewTool(ChatTool,
		mcp.WithDescription("Send a message to the DWY agent. It plans, remembers, drafts marketing "+
			"and content as the message calls for, and returns the reply with every component it used."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user message"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Thread the message into this conversation"),
		),
	)
}

func (h *ChatHandler) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := strings.TrimSpace(req.GetString("message", ""))
	if message == "" {
		return mcp.NewToolResultError("'message' is required"), nil
	}

	var msgContext map[string]any
	if id := req.GetString("conversation_id", ""); id != "" {
		msgContext = map[string]any{capability.ConversationKey: id}
	}

	resp, err := h.agent.ProcessMessage(ctx, message, msgContext)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}
	return jsonResult(resp)
}

// CapabilityHandler handles one dwy_<name> tool.
type CapabilityHandler struct {
	agent  Agent
	target capability.Capability
}

func NewCapabilityHandler(agent Agent, c capability.Capability) *CapabilityHandler {
	return &CapabilityHandler{agent: agent, target: c}
}

func (h *CapabilityHandler) Definition() mcp.Tool {
	return mcp.NewTool(toolPrefix+h.target.Name(),
		mcp.WithDescription(fmt.Sprintf("%s. Same request body as POST %s.", h.target.Description(), h.target.Route())),
		mcp.WithString("payload",
			mcp.Description(`JSON object with the request fields, e.g. {"action": "...", ...}`),
		),
	)
}

func (h *CapabilityHandler) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request := capability.Request{}
	if payload := strings.TrimSpace(req.GetString("payload", "")); payload != "" {
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("'payload' must be a JSON object: %v", err)), nil
		}
	}

	result, err := h.agent.ExecuteCapability(ctx, h.target.Name(), request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", h.target.Name(), err)), nil
	}
	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
