// Package orchestrator answers chat messages by running them through the
// capabilities: store, analyze, plan, branch, synthesize, store again.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/capability"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

// Apology is the reply sent when a message could not be processed.
const Apology = "I apologize, but I encountered an error processing your message. Please try again."

const (
	defaultStepTimeout = 30 * time.Second
	defaultAgentName   = "DWY Tool-Calling Agent"
)

type Options struct {
	AgentName   string
	StepTimeout time.Duration
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// Status is the health summary reported by /health.
type Status struct {
	Status       string   `json:"status"`
	Agent        string   `json:"agent"`
	Capabilities int      `json:"capabilities"`
	Available    []string `json:"capabilities_available"`
	Timestamp    string   `json:"timestamp"`
}

type Orchestrator struct {
	caps        *capability.Set
	registry    *capability.Registry
	name        string
	stepTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	ready       atomic.Bool
}

func New(caps *capability.Set, opts Options) (*Orchestrator, error) {
	registry, err := caps.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build capability registry: %w", err)
	}

	if opts.AgentName == "" {
		opts.AgentName = defaultAgentName
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil || opts.Meter == nil {
		tracer, meter := telemetry.Noop()
		if opts.Tracer == nil {
			opts.Tracer = tracer
		}
		if opts.Meter == nil {
			opts.Meter = meter
		}
	}

	return &Orchestrator{
		caps:        caps,
		registry:    registry,
		name:        opts.AgentName,
		stepTimeout: opts.StepTimeout,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		meter:       opts.Meter,
	}, nil
}

// Initialize initializes every capability in registration order.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.registry.InitializeAll(ctx); err != nil {
		return err
	}
	o.ready.Store(true)
	o.logger.Info("orchestrator initialized", "agent", o.name, "capabilities", o.registry.Names())
	return nil
}

func (o *Orchestrator) Ready() bool                    { return o.ready.Load() }
func (o *Orchestrator) Name() string                   { return o.name }
func (o *Orchestrator) Registry() *capability.Registry { return o.registry }

func (o *Orchestrator) checkReady() error {
	if !o.ready.Load() {
		return fmt.Errorf("orchestrator %w", capability.ErrNotInitialized)
	}
	return nil
}

func (o *Orchestrator) Status() Status {
	status := "initializing"
	if o.Ready() {
		status = "healthy"
	}
	names := o.registry.Names()
	return Status{
		Status:       status,
		Agent:        o.name,
		Capabilities: len(names),
		Available:    names,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

// step runs fn under the per-step timeout inside an orchestrator span.
func step[T any](ctx context.Context, o *Orchestrator, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name)
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// branch is one conditional capability call in the pipeline.
type branch struct {
	name string
	when func(domain.Analysis, domain.ToolPlan) bool
	run  func(context.Context, *capability.Set, domain.Analysis, domain.ToolPlan) (any, error)
	set  func(*domain.Components, any)
}

func intentIn(labels ...string) func(domain.Analysis, domain.ToolPlan) bool {
	return func(a domain.Analysis, _ domain.ToolPlan) bool { return a.HasIntent(labels...) }
}

var branches = []branch{
	{
		name: domain.CapabilityPlanning,
		when: func(_ domain.Analysis, p domain.ToolPlan) bool { return p.NeedsPlanning },
		run: func(ctx context.Context, s *capability.Set, _ domain.Analysis, p domain.ToolPlan) (any, error) {
			return s.Planning.CreateExecutionPlan(ctx, p)
		},
		set: func(c *domain.Components, v any) { c.Planning = v },
	},
	{
		name: domain.CapabilityMarketing,
		when: intentIn(domain.IntentMarketing, domain.IntentBusiness),
		run: func(ctx context.Context, s *capability.Set, a domain.Analysis, _ domain.ToolPlan) (any, error) {
			return s.Marketing.GenerateResponse(ctx, a)
		},
		set: func(c *domain.Components, v any) { c.Marketing = v },
	},
	{
		name: domain.CapabilityContent,
		when: intentIn(domain.IntentVideo, domain.IntentContent),
		run: func(ctx context.Context, s *capability.Set, a domain.Analysis, _ domain.ToolPlan) (any, error) {
			return s.Content.GenerateContent(ctx, a)
		},
		set: func(c *domain.Components, v any) { c.Content = v },
	},
}

// ProcessMessage answers one user message. Processing failures come back
// as an apology Response rather than an error; the only error is calling
// it before Initialize.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string, msgContext map[string]any) (*domain.Response, error) {
	if err := o.checkReady(); err != nil {
		return nil, err
	}

	start := time.Now()
	msg := domain.NewMessage(text, domain.SenderUser)
	logger := o.logger.With("message_id", msg.ID())
	logger.InfoContext(ctx, "processing message", "length", len(text))

	metadata := map[string]any{
		"processed_by": o.name,
		"message_id":   msg.ID(),
	}

	var memory any = "stored"
	if _, err := step(ctx, o, "store_message", func(ctx context.Context) (string, error) {
		return o.caps.Memory.StoreMessage(ctx, msg, msgContext)
	}); err != nil {
		logger.WarnContext(ctx, "failed to store message", "error", err)
		metadata["memory_error"] = err.Error()
		memory = nil
	}

	resp, err := o.answer(ctx, msg, memory, metadata)
	failed := err != nil
	if failed {
		logger.ErrorContext(ctx, "failed to process message", "error", err)
		metadata["error"] = true
		metadata["error_message"] = err.Error()
		resp = domain.NewResponse(Apology, domain.Components{}, metadata)
	} else if _, err := step(ctx, o, "store_interaction", func(ctx context.Context) (string, error) {
		return o.caps.Memory.StoreInteraction(ctx, msg, resp, msgContext)
	}); err != nil {
		logger.WarnContext(ctx, "failed to store interaction", "error", err)
	}

	telemetry.RecordDuration(ctx, o.meter, "orchestrator.duration", time.Since(start),
		metric.WithAttributes(attribute.Bool("error", failed)))
	logger.InfoContext(ctx, "message processed",
		"duration_ms", time.Since(start).Milliseconds(),
		"capabilities", resp.UsedCapabilities(),
		"error", failed)
	return resp, nil
}

func (o *Orchestrator) answer(ctx context.Context, msg domain.Message, memory any, metadata map[string]any) (*domain.Response, error) {
	analysis, err := step(ctx, o, "analyze", func(ctx context.Context) (domain.Analysis, error) {
		return o.caps.AI.Analyze(ctx, msg.Content())
	})
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	plan, err := step(ctx, o, "plan_tools", func(ctx context.Context) (domain.ToolPlan, error) {
		return o.caps.Tools.PlanTools(ctx, analysis)
	})
	if err != nil {
		return nil, fmt.Errorf("tool planning failed: %w", err)
	}

	components := domain.Components{Memory: memory}
	if len(plan.Tools) > 0 {
		components.Tools = plan
	}
	for _, b := range branches {
		if !b.when(analysis, plan) {
			continue
		}
		v, err := step(ctx, o, b.name, func(ctx context.Context) (any, error) {
			return b.run(ctx, o.caps, analysis, plan)
		})
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", b.name, err)
		}
		b.set(&components, v)
	}

	text, err := step(ctx, o, "synthesize", func(ctx context.Context) (string, error) {
		mc, err := o.caps.Memory.RelevantContext(ctx)
		if err != nil {
			return "", err
		}
		return o.caps.AI.Synthesize(ctx, capability.SynthesisInput{
			Message:    msg.Content(),
			Analysis:   analysis,
			ToolPlan:   plan,
			Components: components,
			Memory:     mc,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	metadata["intent"] = analysis.Intent
	metadata["analysis_source"] = analysis.Source
	return domain.NewResponse(text, components, metadata), nil
}

// ExecuteCapability invokes a capability by name.
func (o *Orchestrator) ExecuteCapability(ctx context.Context, name string, req capability.Request) (capability.Result, error) {
	c, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return step(ctx, o, "execute."+name, func(ctx context.Context) (capability.Result, error) {
		return c.Invoke(ctx, req)
	})
}

func (o *Orchestrator) ProjectStatus(ctx context.Context, id string) (capability.Result, error) {
	return step(ctx, o, "project_status", func(ctx context.Context) (capability.Result, error) {
		return o.caps.Planning.ProjectStatus(ctx, id)
	})
}

func (o *Orchestrator) CompleteTask(ctx context.Context, id string) (capability.Result, error) {
	return step(ctx, o, "complete_task", func(ctx context.Context) (capability.Result, error) {
		return o.caps.Planning.CompleteTask(ctx, id)
	})
}

func (o *Orchestrator) ListTools(ctx context.Context) ([]capability.ToolInfo, error) {
	return step(ctx, o, "list_tools", o.caps.Tools.ListTools)
}

func (o *Orchestrator) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return step(ctx, o, "conversation", func(ctx context.Context) (*domain.Conversation, error) {
		return o.caps.Memory.Conversation(ctx, id)
	})
}
