package domain

import (
	"encoding/json"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

const (
	ConversationActive = "active"
	ConversationEnded  = "ended"
)

var ErrConversationEnded = errors.New("conversation has ended")

// Conversation is an append-only message log plus a free-form context map.
type Conversation struct {
	ID            string
	Participants  []string
	Context       map[string]any
	Status        string
	StartedAt     time.Time
	LastMessageAt time.Time
	EndedAt       time.Time

	messages []Message
}

func NewConversation(participants ...string) *Conversation {
	return NewConversationWithID("conv_"+uuid.NewString(), participants...)
}

// NewConversationWithID starts a conversation under a caller-chosen id.
func NewConversationWithID(id string, participants ...string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:            id,
		Participants:  append([]string(nil), participants...),
		Context:       map[string]any{},
		Status:        ConversationActive,
		StartedAt:     now,
		LastMessageAt: now,
	}
}

func (c *Conversation) AddMessage(m Message) error {
	if c.Status == ConversationEnded {
		return ErrConversationEnded
	}
	c.messages = append(c.messages, m)
	c.LastMessageAt = m.Timestamp()
	return nil
}

func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) MessageCount() int { return len(c.messages) }

// UpdateContext merges values into the conversation context.
func (c *Conversation) UpdateContext(values map[string]any) {
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	maps.Copy(c.Context, values)
}

// Duration is the time since the conversation started, or its full length
// once ended.
func (c *Conversation) Duration() time.Duration {
	end := time.Now().UTC()
	if c.Status == ConversationEnded && !c.EndedAt.IsZero() {
		end = c.EndedAt
	}
	return end.Sub(c.StartedAt)
}

func (c *Conversation) End() {
	if c.Status == ConversationEnded {
		return
	}
	c.Status = ConversationEnded
	c.EndedAt = time.Now().UTC()
}

type conversationJSON struct {
	ID            string         `json:"id"`
	Participants  []string       `json:"participants"`
	Messages      []Message      `json:"messages"`
	Context       map[string]any `json:"context"`
	Status        string         `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	LastMessageAt time.Time      `json:"last_message_at"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	MessageCount  int            `json:"message_count"`
}

func (c *Conversation) MarshalJSON() ([]byte, error) {
	raw := conversationJSON{
		ID:            c.ID,
		Participants:  c.Participants,
		Messages:      c.Messages(),
		Context:       c.Context,
		Status:        c.Status,
		StartedAt:     c.StartedAt,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  len(c.messages),
	}
	if !c.EndedAt.IsZero() {
		ended := c.EndedAt
		raw.EndedAt = &ended
	}
	return json.Marshal(raw)
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw conversationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Conversation{
		ID:            raw.ID,
		Participants:  raw.Participants,
		Context:       raw.Context,
		Status:        raw.Status,
		StartedAt:     raw.StartedAt,
		LastMessageAt: raw.LastMessageAt,
		messages:      raw.Messages,
	}
	if raw.EndedAt != nil {
		c.EndedAt = *raw.EndedAt
	}
	if c.Context == nil {
		c.Context = map[string]any{}
	}
	return nil
}
