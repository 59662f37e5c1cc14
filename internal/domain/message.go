// Package domain holds the records exchanged between the orchestrator,
// the capabilities and the storage backends.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

const MessageTypeText = "text"

// Message is a single chat message. It cannot be changed once built.
type Message struct {
	id        string
	content   string
	sender    Sender
	timestamp time.Time
	typ       string
}

func NewMessage(content string, sender Sender) Message {
	return NewTypedMessage(content, sender, MessageTypeText)
}

func NewTypedMessage(content string, sender Sender, typ string) Message {
	if typ == "" {
		typ = MessageTypeText
	}
	return Message{
		id:        "msg_" + uuid.NewString(),
		content:   content,
		sender:    sender,
		timestamp: time.Now().UTC(),
		typ:       typ,
	}
}

// RestoreMessage rebuilds a message read back from storage.
func RestoreMessage(id, content string, sender Sender, typ string, ts time.Time) Message {
	return Message{id: id, content: content, sender: sender, timestamp: ts, typ: typ}
}

func (m Message) ID() string           { return m.id }
func (m Message) Content() string      { return m.content }
func (m Message) Sender() Sender       { return m.sender }
func (m Message) Timestamp() time.Time { return m.timestamp }
func (m Message) Type() string         { return m.typ }
func (m Message) IsFromUser() bool     { return m.sender == SenderUser }
func (m Message) IsFromAgent() bool    { return m.sender == SenderAgent }

// Equal reports whether two messages carry the same id.
func (m Message) Equal(other Message) bool { return m.id == other.id }

type messageJSON struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:        m.id,
		Content:   m.content,
		Sender:    m.sender,
		Timestamp: m.timestamp,
		Type:      m.typ,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = RestoreMessage(raw.ID, raw.Content, raw.Sender, raw.Type, raw.Timestamp)
	return nil
}
