// Package capability implements the agent's pluggable capabilities
// (planning, memory, marketing, content, tools and ai) behind one
// Initialize/Invoke contract, and the registry that looks them up by name.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/cache"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/mcp"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/telemetry"
)

var (
	ErrNotInitialized    = errors.New("not initialized")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownCapability = errors.New("unknown capability")
)

// Result sources.
const (
	SourceDemo    = "demo"
	SourceBackend = "backend"
)

// Request is the ad-hoc JSON body sent to a capability.
type Request map[string]any

// Result is the ad-hoc JSON body a capability returns.
type Result map[string]any

// Capability is one pluggable unit of agent behaviour.
type Capability interface {
	Name() string
	Description() string
	// Route is the HTTP path that invokes the capability directly.
	Route() string
	Initialize(ctx context.Context) error
	// Invoke runs the action named by req["action"], or the capability's
	// default action.
	Invoke(ctx context.Context, req Request) (Result, error)
}

// ValidationError is returned for a request missing required fields. It
// carries an example of a valid request.
type ValidationError struct {
	Capability string
	Message    string
	Example    Request
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func invalid(capability string, example Request, format string, args ...any) error {
	return &ValidationError{Capability: capability, Message: fmt.Sprintf(format, args...), Example: example}
}

// Deps are the collaborators shared by every capability. A nil LLM puts
// the capabilities in demo mode.
type Deps struct {
	LLM    backend.Client
	Store  storage.Store
	Tools  *mcp.Registry
	Cache  *cache.Cache
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tracer == nil || d.Meter == nil {
		tracer, meter := telemetry.Noop()
		if d.Tracer == nil {
			d.Tracer = tracer
		}
		if d.Meter == nil {
			d.Meter = meter
		}
	}
	return d
}

type action func(ctx context.Context, req Request) (Result, error)

// base carries the readiness flag, action table and shared helpers every
// capability embeds.
type base struct {
	name, description, route string
	defaultAction            string
	example                  Request
	actions                  map[string]action
	deps                     Deps
	ready                    atomic.Bool
}

func (b *base) setup(name, description, route, defaultAction string, example Request, deps Deps) {
	b.name = name
	b.description = description
	b.route = route
	b.defaultAction = defaultAction
	b.example = example
	b.actions = make(map[string]action)
	b.deps = deps.withDefaults()
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) Route() string       { return b.route }
func (b *base) Ready() bool         { return b.ready.Load() }

// Actions lists the action names Invoke accepts.
func (b *base) Actions() []string {
	names := make([]string, 0, len(b.actions))
	for name := range b.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *base) markReady() {
	b.ready.Store(true)
	mode := SourceBackend
	if b.demo() {
		mode = SourceDemo
	}
	b.deps.Logger.Info("capability initialized", "capability", b.name, "mode", mode)
}

func (b *base) checkReady() error {
	if !b.ready.Load() {
		return fmt.Errorf("%s %w", b.name, ErrNotInitialized)
	}
	return nil
}

func (b *base) demo() bool { return b.deps.LLM == nil }

// Invoke dispatches req to the named action inside a span and records the
// invocation.
func (b *base) Invoke(ctx context.Context, req Request) (Result, error) {
	if err := b.checkReady(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.String("action"))
	if name == "" {
		name = b.defaultAction
	}
	fn, ok := b.actions[name]
	if !ok {
		return nil, invalid(b.name, b.example, "unknown action %q for %s (available: %s)",
			name, b.name, strings.Join(b.Actions(), ", "))
	}

	ctx, span := b.deps.Tracer.Start(ctx, "capability."+b.name+"."+name)
	defer span.End()

	start := time.Now()
	result, err := fn(ctx, req)

	attrs := metric.WithAttributes(
		attribute.String("capability", b.name),
		attribute.String("action", name),
		attribute.Bool("error", err != nil),
	)
	telemetry.AddCount(ctx, b.deps.Meter, "capability.invocations", 1, attrs)
	telemetry.RecordDuration(ctx, b.deps.Meter, "capability.duration", time.Since(start), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result == nil {
		result = Result{}
	}
	result["capability"] = b.name
	if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	return result, nil
}

// ask sends a prompt to the LLM, going through the response cache when
// one is configured.
func (b *base) ask(ctx context.Context, system, prompt string) (string, error) {
	if b.deps.LLM == nil {
		return "", errors.New("no LLM backend configured")
	}

	var messages []backend.Message
	if system != "" {
		messages = append(messages, backend.Message{Role: backend.RoleSystem, Content: system})
	}
	messages = append(messages, backend.Message{Role: backend.RoleUser, Content: prompt})

	var key string
	if b.deps.Cache != nil {
		key = cache.GenerateCacheKey(messages)
		if cached, ok := b.deps.Cache.Get(key); ok {
			b.deps.Logger.Debug("cache hit", "capability", b.name, "key", key[:16])
			return cached, nil
		}
	}

	text, err := b.deps.LLM.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	if key != "" {
		b.deps.Cache.Put(key, text)
	}
	return text, nil
}

// fallback marks result as demo output produced because the backend failed,
// and makes the failure visible in logs and metrics.
func (b *base) fallback(ctx context.Context, result Result, err error) Result {
	b.noteFallback(ctx, err)
	result["source"] = SourceDemo
	result["fallback_reason"] = err.Error()
	return result
}

func (b *base) noteFallback(ctx context.Context, err error) {
	b.deps.Logger.WarnContext(ctx, "backend call failed, using demo output",
		"capability", b.name, "error", err)
	telemetry.AddCount(ctx, b.deps.Meter, "capability.fallbacks", 1,
		metric.WithAttributes(attribute.String("capability", b.name)))
}

// Registry maps capability names to implementations, keeping registration
// order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Capability
	order  []string
}

func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{byName: make(map[string]Capability)}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[c.Name()]; ok {
		return fmt.Errorf("capability %s already registered", c.Name())
	}
	r.byName[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return c, nil
}

// MustGet is Get for names known at compile time. It panics when name is
// not registered.
func (r *Registry) MustGet(name string) Capability {
	c, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return c
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) All() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// InitializeAll initializes every capability in registration order and
// stops at the first failure.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, c := range r.All() {
		if err := c.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Invoke looks up name and invokes it.
func (r *Registry) Invoke(ctx context.Context, name string, req Request) (Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, req)
}

// Readiness is implemented by capabilities that report whether Initialize
// has completed.
type Readiness interface {
	Ready() bool
}
