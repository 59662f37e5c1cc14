package backend

import (
	"context"
	"sync"
)

// Mock is an offline Client. It returns Reply (or echoes the last user
// turn) and records every prompt it receives.
type Mock struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls [][]Message
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Complete(_ context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return "mock reply: " + messages[i].Content, nil
		}
	}
	return "mock reply", nil
}

// Calls returns the prompts received so far.
func (m *Mock) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}
