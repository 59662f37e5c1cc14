// Package memory is an in-process storage.Store guarded by a RWMutex.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage"
)

type Store struct {
	mu            sync.RWMutex
	entries       []domain.MemoryEntry
	projects      map[string][]byte
	conversations map[string][]byte
}

func New() *Store {
	return &Store{
		projects:      make(map[string][]byte),
		conversations: make(map[string][]byte),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) PutEntry(_ context.Context, entry domain.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Key == entry.Key {
			return fmt.Errorf("entry %s already exists", entry.Key)
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) RecentEntries(_ context.Context, limit int) ([]domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tail := storage.Tail(s.entries, limit)
	out := make([]domain.MemoryEntry, len(tail))
	copy(out, tail)
	return out, nil
}

func (s *Store) SearchEntries(_ context.Context, query string, limit int) ([]domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MemoryEntry
	for _, e := range s.entries {
		if storage.Matches(e, query) {
			out = append(out, e)
		}
	}
	return storage.Tail(out, limit), nil
}

func (s *Store) CountEntries(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Projects and conversations are stored serialized so callers never share
// state with the store.

func (s *Store) SaveProject(_ context.Context, project *domain.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	s.mu.Lock()
	s.projects[project.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	data, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

func (s *Store) SaveConversation(_ context.Context, conv *domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	s.mu.Lock()
	s.conversations[conv.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	data, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	var c domain.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) Close() error { return nil }
