// Package storage defines the persistence port used by the memory and
// planning capabilities. Implementations live in the memory, sqlite and
// redis subpackages.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store keeps memory entries, projects and conversations. Entries are
// returned oldest first.
type Store interface {
	PutEntry(ctx context.Context, entry domain.MemoryEntry) error
	RecentEntries(ctx context.Context, limit int) ([]domain.MemoryEntry, error)
	SearchEntries(ctx context.Context, query string, limit int) ([]domain.MemoryEntry, error)
	CountEntries(ctx context.Context) (int, error)

	SaveProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)

	SaveConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	Close() error
}

// Matches reports whether an entry contains query in its content or tags,
// ignoring case. An empty query matches everything.
func Matches(entry domain.MemoryEntry, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(entry.Content), q) {
		return true
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Tail returns the last n items of s, or all of s when n <= 0.
func Tail[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
