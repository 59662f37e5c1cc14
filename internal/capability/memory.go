package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
)

// ConversationKey is the message context key naming the conversation a
// message belongs to.
const ConversationKey = "conversation_id"

const (
	contextWindow = 5
	recallLimit   = 10
)

// ContextEntry is one remembered item handed to synthesis.
type ContextEntry struct {
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryContext is the recent memory relevant to a new message.
type MemoryContext struct {
	RecentMessages []ContextEntry `json:"recent_messages"`
	ContextSize    int            `json:"context_size"`
}

// Memory keeps messages, interactions and notes in a storage.Store and
// threads messages into conversations.
type Memory struct {
	base

	// serializes read-modify-write of conversations
	convMu sync.Mutex
}

func NewMemory(deps Deps) *Memory {
	m := &Memory{}
	m.setup(domain.CapabilityMemory, "Knowledge capture and recall", "/workshop2/remember", "store",
		Request{
			"type":    domain.EntryNote,
			"content": "The launch date moved to March 3",
			"tags":    []string{"launch"},
		}, deps)
	m.actions["store"] = m.store
	m.actions["recall"] = m.recall
	m.actions["conversation"] = m.conversation
	return m
}

func (m *Memory) Initialize(ctx context.Context) error {
	if m.deps.Store == nil {
		return errors.New("memory requires a store")
	}
	m.markReady()
	return nil
}

func (m *Memory) store(ctx context.Context, req Request) (Result, error) {
	content, err := req.requireString(m.name, m.example, "content")
	if err != nil {
		return nil, err
	}
	tags, err := req.stringList(m.name, m.example, "tags")
	if err != nil {
		return nil, err
	}
	kind := req.String("type")
	if kind == "" {
		kind = domain.EntryNote
	}

	entry := domain.MemoryEntry{
		Key:            "note_" + uuid.NewString(),
		Kind:           kind,
		Content:        content,
		Tags:           tags,
		ConversationID: req.String(ConversationKey),
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.deps.Store.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store entry: %w", err)
	}
	return Result{"key": entry.Key, "source": SourceDemo}, nil
}

func (m *Memory) recall(ctx context.Context, req Request) (Result, error) {
	limit := req.Int("limit", recallLimit)
	if limit <= 0 {
		return nil, invalid(m.name, Request{"action": "recall", "query": "launch", "limit": 5}, "limit must be positive")
	}
	entries, err := m.deps.Store.SearchEntries(ctx, strings.TrimSpace(req.String("query")), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}
	if entries == nil {
		entries = []domain.MemoryEntry{}
	}
	return Result{"entries": entries, "count": len(entries), "source": SourceDemo}, nil
}

func (m *Memory) conversation(ctx context.Context, req Request) (Result, error) {
	id, err := req.requireString(m.name, Request{"action": "conversation", ConversationKey: "conv_..."}, ConversationKey)
	if err != nil {
		return nil, err
	}
	conv, err := m.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return Result{"conversation": conv, "source": SourceDemo}, nil
}

// StoreMessage records an incoming message and returns its memory key.
// When msgContext names a conversation the message is appended to it.
func (m *Memory) StoreMessage(ctx context.Context, msg domain.Message, msgContext map[string]any) (string, error) {
	if err := m.checkReady(); err != nil {
		return "", err
	}

	convID := conversationID(msgContext)
	entry := domain.MemoryEntry{
		Key:     msg.ID(),
		Kind:    domain.EntryMessage,
		Content: msg.Content(),
		Data: map[string]any{
			"sender":  string(msg.Sender()),
			"context": msgContext,
		},
		ConversationID: convID,
		CreatedAt:      msg.Timestamp(),
	}
	if err := m.deps.Store.PutEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to store message: %w", err)
	}
	if err := m.appendToConversation(ctx, convID, msg, msgContext); err != nil {
		return "", err
	}
	return entry.Key, nil
}

// StoreInteraction records a message together with the reply it received.
func (m *Memory) StoreInteraction(ctx context.Context, msg domain.Message, resp *domain.Response, msgContext map[string]any) (string, error) {
	if err := m.checkReady(); err != nil {
		return "", err
	}

	convID := conversationID(msgContext)
	entry := domain.MemoryEntry{
		Key:     "interaction_" + uuid.NewString(),
		Kind:    domain.EntryInteraction,
		Content: msg.Content(),
		Data: map[string]any{
			"message_id":  msg.ID(),
			"response_id": resp.ID(),
			"response":    resp.Text(),
		},
		ConversationID: convID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.deps.Store.PutEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to store interaction: %w", err)
	}
	reply := domain.NewMessage(resp.Text(), domain.SenderAgent)
	if err := m.appendToConversation(ctx, convID, reply, nil); err != nil {
		return "", err
	}
	return entry.Key, nil
}

// RelevantContext returns the most recent entries and the store size.
func (m *Memory) RelevantContext(ctx context.Context) (MemoryContext, error) {
	if err := m.checkReady(); err != nil {
		return MemoryContext{}, err
	}
	entries, err := m.deps.Store.RecentEntries(ctx, contextWindow)
	if err != nil {
		return MemoryContext{}, fmt.Errorf("failed to read recent memory: %w", err)
	}
	size, err := m.deps.Store.CountEntries(ctx)
	if err != nil {
		return MemoryContext{}, fmt.Errorf("failed to count memory: %w", err)
	}

	out := MemoryContext{RecentMessages: make([]ContextEntry, 0, len(entries)), ContextSize: size}
	for _, e := range entries {
		out.RecentMessages = append(out.RecentMessages, ContextEntry{
			Kind:      e.Kind,
			Content:   e.Content,
			Timestamp: e.CreatedAt,
		})
	}
	return out, nil
}

// Conversation loads a stored conversation.
func (m *Memory) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	conv, err := m.deps.Store.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

func (m *Memory) appendToConversation(ctx context.Context, id string, msg domain.Message, values map[string]any) error {
	if id == "" {
		return nil
	}

	m.convMu.Lock()
	defer m.convMu.Unlock()

	conv, err := m.deps.Store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		conv = domain.NewConversationWithID(id, string(domain.SenderUser), string(domain.SenderAgent))
	} else if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	if err := conv.AddMessage(msg); err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}
	if len(values) > 0 {
		conv.UpdateContext(values)
	}
	if err := m.deps.Store.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func conversationID(values map[string]any) string {
	id, _ := values[ConversationKey].(string)
	return strings.TrimSpace(id)
}
