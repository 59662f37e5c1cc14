package capability

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcp"
)

const builtinSource = "builtin"

// ToolInfo describes a tool callable through the tools capability.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type builtinTool struct {
	description string
	run         func(args map[string]any) (any, error)
}

var builtinTools = map[string]builtinTool{
	"time_now": {
		description: "Current time in UTC (RFC 3339)",
		run: func(map[string]any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	},
	"text_stats": {
		description: "Character, word and line counts of arguments.text",
		run: func(args map[string]any) (any, error) {
			text, ok := args["text"].(string)
			if !ok {
				return nil, errors.New("arguments.text must be a string")
			}
			lines := 0
			if text != "" {
				lines = strings.Count(text, "\n") + 1
			}
			return map[string]int{
				"chars": utf8.RuneCountInString(text),
				"words": len(strings.Fields(text)),
				"lines": lines,
			}, nil
		},
	},
}

// intentTools maps analysis intents to the capabilities that serve them.
var intentTools = []struct {
	intent string
	tool   string
}{
	{domain.IntentPlanning, domain.CapabilityPlanning},
	{domain.IntentMemory, domain.CapabilityMemory},
	{domain.IntentMarketing, domain.CapabilityMarketing},
	{domain.IntentBusiness, domain.CapabilityMarketing},
	{domain.IntentVideo, domain.CapabilityContent},
	{domain.IntentContent, domain.CapabilityContent},
}

// Tools runs built-in tools and tools served by connected MCP servers.
type Tools struct {
	base
}

func NewTools(deps Deps) *Tools {
	t := &Tools{}
	t.setup(domain.CapabilityTools, "Built-in and MCP tool calling", "/workshop5/tools", "callTool",
		Request{"tool": "text_stats", "arguments": map[string]any{"text": "hello tool world"}}, deps)
	t.actions["callTool"] = t.callTool
	t.actions["list"] = t.list
	return t
}

func (t *Tools) Initialize(ctx context.Context) error {
	if t.deps.Tools != nil && t.deps.Tools.Count() > 0 {
		t.deps.Tools.RefreshTools(ctx)
	}
	t.markReady()
	return nil
}

func (t *Tools) callTool(ctx context.Context, req Request) (Result, error) {
	name, err := req.requireString(t.name, t.example, "tool")
	if err != nil {
		return nil, err
	}
	args := req.Map("arguments")
	if args == nil {
		args = map[string]any{}
	}

	if tool, ok := builtinTools[name]; ok {
		out, err := tool.run(args)
		if err != nil {
			return nil, invalid(t.name, t.example, "%s: %v", name, err)
		}
		return Result{"tool": name, "result": out, "source": builtinSource}, nil
	}

	if t.deps.Tools == nil {
		return nil, invalid(t.name, t.example, "unknown tool %q", name)
	}
	res, err := t.deps.Tools.CallTool(ctx, name, args)
	if errors.Is(err, mcp.ErrToolNotFound) {
		return nil, invalid(t.name, t.example, "unknown tool %q", name)
	}
	if err != nil {
		return nil, err
	}
	return Result{
		"tool":    name,
		"result":  res.Text(),
		"success": !res.IsError,
		"source":  "mcp",
	}, nil
}

func (t *Tools) list(ctx context.Context, _ Request) (Result, error) {
	tools, err := t.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return Result{"tools": tools, "total": len(tools), "source": builtinSource}, nil
}

// ListTools returns the built-in tools followed by every MCP tool.
func (t *Tools) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := t.checkReady(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(builtinTools))
	for name := range builtinTools {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		out = append(out, ToolInfo{Name: name, Description: builtinTools[name].description, Source: builtinSource})
	}
	if t.deps.Tools != nil {
		for _, tool := range t.deps.Tools.Tools() {
			out = append(out, ToolInfo{Name: tool.Name, Description: tool.Description, Source: tool.ServerName})
		}
	}
	return out, nil
}

// PlanTools lists the capabilities the analyzed intents call for.
func (t *Tools) PlanTools(ctx context.Context, analysis domain.Analysis) (domain.ToolPlan, error) {
	if err := t.checkReady(); err != nil {
		return domain.ToolPlan{}, err
	}

	plan := domain.ToolPlan{
		Tools:         []string{},
		NeedsPlanning: analysis.HasIntent(domain.IntentPlanning),
	}
	for _, it := range intentTools {
		if analysis.HasIntent(it.intent) && !slices.Contains(plan.Tools, it.tool) {
			plan.Tools = append(plan.Tools, it.tool)
		}
	}
	t.deps.Logger.DebugContext(ctx, "tool plan", "tools", plan.Tools, "needs_planning", plan.NeedsPlanning)
	return plan, nil
}
