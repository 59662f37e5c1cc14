package domain

import (
	"slices"
	"time"
)

// Intent labels produced by message analysis.
const (
	IntentPlanning  = "planning"
	IntentMarketing = "marketing"
	IntentBusiness  = "business"
	IntentVideo     = "video"
	IntentContent   = "content"
	IntentMemory    = "memory"
	IntentGeneral   = "general"
)

// Analysis is the classification of one user message.
type Analysis struct {
	Intent     []string `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`
	Sentiment  string   `json:"sentiment"`
	Complexity string   `json:"complexity"`
	Source     string   `json:"source"`
}

// HasIntent reports whether any of the given labels was detected.
func (a Analysis) HasIntent(labels ...string) bool {
	for _, l := range labels {
		if slices.Contains(a.Intent, l) {
			return true
		}
	}
	return false
}

// ToolPlan lists the capabilities a message calls for.
type ToolPlan struct {
	Tools         []string `json:"tools"`
	NeedsPlanning bool     `json:"needs_planning"`
}

// Entry kinds kept by the memory capability.
const (
	EntryMessage     = "message"
	EntryInteraction = "interaction"
	EntryNote        = "note"
)

// MemoryEntry is one record in the agent's memory.
type MemoryEntry struct {
	Key            string         `json:"key"`
	Kind           string         `json:"kind"`
	Content        string         `json:"content"`
	Data           map[string]any `json:"data,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
