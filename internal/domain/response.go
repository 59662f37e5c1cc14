package domain

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Capability names, in the order they are reported.
const (
	CapabilityPlanning  = "planning"
	CapabilityMemory    = "memory"
	CapabilityMarketing = "marketing"
	CapabilityContent   = "content"
	CapabilityTools     = "tools"
	CapabilityAI        = "ai"
)

var optionalCapabilities = []string{
	CapabilityPlanning,
	CapabilityMemory,
	CapabilityMarketing,
	CapabilityContent,
	CapabilityTools,
}

// Components holds the per-capability results gathered while answering a
// message. A nil field means the capability did not run.
type Components struct {
	Planning  any `json:"planning"`
	Memory    any `json:"memory"`
	Marketing any `json:"marketing"`
	Content   any `json:"content"`
	Tools     any `json:"tools"`
}

func (c Components) get(name string) any {
	switch name {
	case CapabilityPlanning:
		return c.Planning
	case CapabilityMemory:
		return c.Memory
	case CapabilityMarketing:
		return c.Marketing
	case CapabilityContent:
		return c.Content
	case CapabilityTools:
		return c.Tools
	}
	return nil
}

// Response is the agent's reply to one message. Accessors return copies so
// a built Response never changes.
type Response struct {
	id         string
	text       string
	components Components
	metadata   map[string]any
}

func NewResponse(text string, components Components, metadata map[string]any) *Response {
	md := make(map[string]any, len(metadata)+1)
	maps.Copy(md, metadata)
	if _, ok := md["timestamp"]; !ok {
		md["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return &Response{
		id:         "resp_" + uuid.NewString(),
		text:       text,
		components: components,
		metadata:   md,
	}
}

func (r *Response) ID() string             { return r.id }
func (r *Response) Text() string           { return r.text }
func (r *Response) Components() Components { return r.components }

func (r *Response) Metadata() map[string]any {
	return maps.Clone(r.metadata)
}

// Component returns the result recorded for name, or nil.
func (r *Response) Component(name string) any {
	return r.components.get(name)
}

func (r *Response) HasComponent(name string) bool {
	if name == CapabilityAI {
		return true
	}
	return r.components.get(name) != nil
}

// IsError reports whether the response is the generic failure reply.
func (r *Response) IsError() bool {
	v, _ := r.metadata["error"].(bool)
	return v
}

// UsedCapabilities lists every optional capability that produced a result,
// followed by "ai", which always takes part in the reply.
func (r *Response) UsedCapabilities() []string {
	used := make([]string, 0, len(optionalCapabilities)+1)
	for _, name := range optionalCapabilities {
		if r.components.get(name) != nil {
			used = append(used, name)
		}
	}
	return append(used, CapabilityAI)
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID               string         `json:"id"`
		Response         string         `json:"response"`
		Components       Components     `json:"components"`
		Metadata         map[string]any `json:"metadata"`
		UsedCapabilities []string       `json:"used_capabilities"`
	}{
		ID:               r.id,
		Response:         r.text,
		Components:       r.components,
		Metadata:         r.metadata,
		UsedCapabilities: r.UsedCapabilities(),
	})
}
